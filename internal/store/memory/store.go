// Package memory implements store.TicketStore as a mutex-guarded in-memory
// structure. All dispatch, numbering, and recall updates serialize through
// one lock, which gives the same atomicity the postgres driver gets from
// conditional updates. It backs tests and DSN-less development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	tickets   []models.Ticket
	counters  map[int]*models.Counter
	employees map[string]*models.Employee
	sessions  map[string]string
	settings  map[string]string
}

func NewStore() *Store {
	return &Store{
		counters:  make(map[int]*models.Counter),
		employees: make(map[string]*models.Employee),
		sessions:  make(map[string]string),
		settings:  make(map[string]string),
	}
}

func (s *Store) EnqueueTicket(ctx context.Context, category string, now time.Time) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := store.Today(now)
	next := 1
	for i := range s.tickets {
		if window.Contains(s.tickets[i].CreatedAt) && s.tickets[i].Number >= next {
			next = s.tickets[i].Number + 1
		}
	}

	ticket := models.Ticket{
		Number:    next,
		Status:    models.StatusWaiting,
		Category:  category,
		CreatedAt: now,
	}
	s.tickets = append(s.tickets, ticket)
	return ticket, nil
}

func (s *Store) GetTicketByNumber(ctx context.Context, number int, window store.Window) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket := s.find(number, window)
	if ticket == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return *ticket, nil
}

func (s *Store) ListTicketsInWindow(ctx context.Context, window store.Window) ([]models.Ticket, error) {
	return s.ListTicketsBetween(ctx, window.Start, window.End)
}

func (s *Store) ListTicketsBetween(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickets []models.Ticket
	for i := range s.tickets {
		created := s.tickets[i].CreatedAt
		if !created.Before(from) && created.Before(to) {
			tickets = append(tickets, s.tickets[i])
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].Number < tickets[j].Number
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *Store) TransitionTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket := s.find(input.Number, input.Window)
	if ticket == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if ticket.Status != input.FromStatus || !store.ValidTransition(input.FromStatus, input.ToStatus) {
		return models.Ticket{}, store.ErrInvalidState
	}

	ticket.Status = input.ToStatus
	if input.CounterNumber != nil {
		ticket.CounterNumber = input.CounterNumber
	}
	if input.ServedAt != nil {
		ticket.ServedAt = input.ServedAt
	}
	if input.CompletedAt != nil {
		ticket.CompletedAt = input.CompletedAt
	}
	if input.CancelReason != nil {
		ticket.CancelReason = input.CancelReason
	}
	return *ticket, nil
}

func (s *Store) ClaimOldestWaiting(ctx context.Context, counterNumber int, now time.Time) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := store.Today(now)
	var oldest *models.Ticket
	for i := range s.tickets {
		t := &s.tickets[i]
		if t.Status != models.StatusWaiting || !window.Contains(t.CreatedAt) {
			continue
		}
		if oldest == nil || t.Number < oldest.Number {
			oldest = t
		}
	}
	if oldest == nil {
		return models.Ticket{}, false, nil
	}

	counter := counterNumber
	servedAt := now
	oldest.Status = models.StatusServing
	oldest.CounterNumber = &counter
	oldest.ServedAt = &servedAt
	return *oldest, true, nil
}

func (s *Store) IncrementRecall(ctx context.Context, number int, window store.Window) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket := s.find(number, window)
	if ticket == nil {
		return 0, store.ErrTicketNotFound
	}
	if ticket.Status != models.StatusServing {
		return 0, store.ErrInvalidState
	}
	ticket.RecallCount++
	return ticket.RecallCount, nil
}

func (s *Store) CancelActiveTickets(ctx context.Context, window store.Window, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for i := range s.tickets {
		t := &s.tickets[i]
		if !window.Contains(t.CreatedAt) {
			continue
		}
		if t.Status != models.StatusWaiting && t.Status != models.StatusServing {
			continue
		}
		t.Status = models.StatusCancelled
		if reason != "" {
			r := reason
			t.CancelReason = &r
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *Store) UpsertCounter(ctx context.Context, number int, employeeName string) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.counter(number)
	counter.Status = models.CounterOpen
	if employeeName != "" {
		counter.EmployeeName = employeeName
	}
	return *counter, nil
}

func (s *Store) CloseCounter(ctx context.Context, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[number]
	if !ok {
		return store.ErrCounterNotFound
	}
	counter.Status = models.CounterClosed
	counter.CurrentTicket = nil
	return nil
}

func (s *Store) GetCounter(ctx context.Context, number int) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[number]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return *counter, nil
}

func (s *Store) SetCurrentTicket(ctx context.Context, counterNumber int, ticketNumber *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.counter(counterNumber)
	if ticketNumber == nil {
		counter.CurrentTicket = nil
		return nil
	}
	number := *ticketNumber
	counter.CurrentTicket = &number
	return nil
}

func (s *Store) ListCounters(ctx context.Context) ([]models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := make([]models.Counter, 0, len(s.counters))
	for _, counter := range s.counters {
		counters = append(counters, *counter)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].Number < counters[j].Number })
	return counters, nil
}

func (s *Store) ClearAllCurrentTickets(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, counter := range s.counters {
		counter.CurrentTicket = nil
	}
	return nil
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, employee := range s.employees {
		if employee.Username == username {
			return *employee, nil
		}
	}
	return models.Employee{}, store.ErrEmployeeNotFound
}

func (s *Store) GetEmployeeByCounter(ctx context.Context, counterNumber int) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, employee := range s.employees {
		if employee.CounterNumber == counterNumber {
			return *employee, nil
		}
	}
	return models.Employee{}, store.ErrEmployeeNotFound
}

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employees := make([]models.Employee, 0, len(s.employees))
	for _, employee := range s.employees {
		employees = append(employees, *employee)
	}
	sort.Slice(employees, func(i, j int) bool { return employees[i].CounterNumber < employees[j].CounterNumber })
	return employees, nil
}

func (s *Store) CreateEmployee(ctx context.Context, input store.CreateEmployeeInput) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.employees {
		if existing.Username == input.Username || existing.CounterNumber == input.CounterNumber {
			return models.Employee{}, store.ErrEmployeeExists
		}
	}

	role := input.Role
	if role == "" {
		role = models.RoleEmployee
	}
	employee := &models.Employee{
		ID:            uuid.NewString(),
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		Name:          input.Name,
		CounterNumber: input.CounterNumber,
		Role:          role,
		Active:        true,
	}
	s.employees[employee.ID] = employee
	return *employee, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, input store.UpdateEmployeeInput) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employee, ok := s.employees[input.ID]
	if !ok {
		return models.Employee{}, store.ErrEmployeeNotFound
	}
	if input.Username != nil {
		employee.Username = *input.Username
	}
	if input.PasswordHash != nil {
		employee.PasswordHash = *input.PasswordHash
	}
	if input.Name != nil {
		employee.Name = *input.Name
	}
	if input.CounterNumber != nil {
		employee.CounterNumber = *input.CounterNumber
	}
	if input.Role != nil {
		employee.Role = *input.Role
	}
	if input.Active != nil {
		employee.Active = *input.Active
	}
	return *employee, nil
}

func (s *Store) AccrueServe(ctx context.Context, counterNumber int, serveTime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, employee := range s.employees {
		if employee.CounterNumber == counterNumber {
			employee.TicketsServed++
			employee.TotalServeTimeMs += serveTime.Milliseconds()
			return nil
		}
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, token, employeeID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = employeeID
	return nil
}

func (s *Store) GetSessionEmployee(ctx context.Context, token string) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employeeID, ok := s.sessions[token]
	if !ok {
		return models.Employee{}, store.ErrSessionNotFound
	}
	employee, ok := s.employees[employeeID]
	if !ok || !employee.Active {
		return models.Employee{}, store.ErrSessionNotFound
	}
	return *employee, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.settings[key]
	if !ok {
		return "", store.ErrSettingNotFound
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// find returns a pointer into the ticket slice; callers hold s.mu.
func (s *Store) find(number int, window store.Window) *models.Ticket {
	for i := range s.tickets {
		t := &s.tickets[i]
		if t.Number == number && window.Contains(t.CreatedAt) {
			return t
		}
	}
	return nil
}

// counter returns the tracked counter, creating an open one on first use;
// callers hold s.mu. Dispatching to a brand-new counter upserts it the way
// the postgres driver does.
func (s *Store) counter(number int) *models.Counter {
	counter, ok := s.counters[number]
	if !ok {
		counter = &models.Counter{Number: number, Status: models.CounterOpen}
		s.counters[number] = counter
	}
	return counter
}
