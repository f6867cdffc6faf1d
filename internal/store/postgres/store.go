package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = "number, status, counter_number, category, created_at, served_at, completed_at, recall_count, cancel_reason"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) EnqueueTicket(ctx context.Context, category string, now time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	window := store.Today(now)

	// One row per business day; the conflict upsert hands out dense,
	// strictly increasing numbers under concurrency and restarts at 1
	// on the first enqueue of a new day.
	var number int
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (day, next_number)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, window.Start)
	if err = row.Scan(&number); err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (number, status, category, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+ticketColumns+`
	`, number, models.StatusWaiting, category, now)
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicketByNumber(ctx context.Context, number int, window store.Window) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE number = $1 AND created_at >= $2 AND created_at < $3
	`, number, window.Start, window.End)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListTicketsInWindow(ctx context.Context, window store.Window) ([]models.Ticket, error) {
	return s.ListTicketsBetween(ctx, window.Start, window.End)
}

func (s *Store) ListTicketsBetween(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, number ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) TransitionTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if !store.ValidTransition(input.FromStatus, input.ToStatus) {
		return models.Ticket{}, store.ErrInvalidState
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE tickets
		SET status = $1,
			counter_number = COALESCE($2, counter_number),
			served_at = COALESCE($3, served_at),
			completed_at = COALESCE($4, completed_at),
			cancel_reason = COALESCE($5, cancel_reason)
		WHERE number = $6 AND created_at >= $7 AND created_at < $8 AND status = $9
		RETURNING `+ticketColumns+`
	`, input.ToStatus, input.CounterNumber, input.ServedAt, input.CompletedAt, input.CancelReason,
		input.Number, input.Window.Start, input.Window.End, input.FromStatus)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, s.classifyMiss(ctx, input.Number, input.Window)
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ClaimOldestWaiting(ctx context.Context, counterNumber int, now time.Time) (models.Ticket, bool, error) {
	window := store.Today(now)
	row := s.pool.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT id
			FROM tickets
			WHERE status = 'waiting' AND created_at >= $1 AND created_at < $2
			ORDER BY number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'serving',
			counter_number = $3,
			served_at = $4
		FROM next_ticket
		WHERE tickets.id = next_ticket.id
		RETURNING tickets.number, tickets.status, tickets.counter_number, tickets.category,
			tickets.created_at, tickets.served_at, tickets.completed_at, tickets.recall_count, tickets.cancel_reason
	`, window.Start, window.End, counterNumber, now)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) IncrementRecall(ctx context.Context, number int, window store.Window) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		UPDATE tickets
		SET recall_count = recall_count + 1
		WHERE number = $1 AND created_at >= $2 AND created_at < $3 AND status = 'serving'
		RETURNING recall_count
	`, number, window.Start, window.End)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.classifyMiss(ctx, number, window)
		}
		return 0, err
	}
	return count, nil
}

func (s *Store) CancelActiveTickets(ctx context.Context, window store.Window, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets
		SET status = 'cancelled',
			cancel_reason = COALESCE(NULLIF($1, ''), cancel_reason)
		WHERE status IN ('waiting', 'serving') AND created_at >= $2 AND created_at < $3
	`, reason, window.Start, window.End)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) UpsertCounter(ctx context.Context, number int, employeeName string) (models.Counter, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO counters (number, employee_name, status)
		VALUES ($1, NULLIF($2, ''), 'open')
		ON CONFLICT (number)
		DO UPDATE SET status = 'open',
			employee_name = COALESCE(NULLIF($2, ''), counters.employee_name)
		RETURNING number, COALESCE(employee_name, ''), current_ticket, status
	`, number, employeeName)
	return scanCounter(row)
}

func (s *Store) CloseCounter(ctx context.Context, number int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE counters
		SET status = 'closed', current_ticket = NULL
		WHERE number = $1
	`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCounterNotFound
	}
	return nil
}

func (s *Store) GetCounter(ctx context.Context, number int) (models.Counter, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT number, COALESCE(employee_name, ''), current_ticket, status
		FROM counters
		WHERE number = $1
	`, number)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) SetCurrentTicket(ctx context.Context, counterNumber int, ticketNumber *int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO counters (number, status, current_ticket)
		VALUES ($1, 'open', $2)
		ON CONFLICT (number)
		DO UPDATE SET current_ticket = $2
	`, counterNumber, ticketNumber)
	return err
}

func (s *Store) ListCounters(ctx context.Context) ([]models.Counter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT number, COALESCE(employee_name, ''), current_ticket, status
		FROM counters
		ORDER BY number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *Store) ClearAllCurrentTickets(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE counters SET current_ticket = NULL`)
	return err
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (models.Employee, error) {
	return s.getEmployee(ctx, `WHERE username = $1`, username)
}

func (s *Store) GetEmployeeByCounter(ctx context.Context, counterNumber int) (models.Employee, error) {
	return s.getEmployee(ctx, `WHERE counter_number = $1`, counterNumber)
}

func (s *Store) getEmployee(ctx context.Context, where string, arg interface{}) (models.Employee, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT employee_id, username, password_hash, name, counter_number, role, active, tickets_served, total_serve_time_ms
		FROM employees
	`+where, arg)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrEmployeeNotFound
		}
		return models.Employee{}, err
	}
	return employee, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT employee_id, username, password_hash, name, counter_number, role, active, tickets_served, total_serve_time_ms
		FROM employees
		ORDER BY counter_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) CreateEmployee(ctx context.Context, input store.CreateEmployeeInput) (models.Employee, error) {
	role := input.Role
	if role == "" {
		role = models.RoleEmployee
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO employees (employee_id, username, password_hash, name, counter_number, role, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT DO NOTHING
		RETURNING employee_id, username, password_hash, name, counter_number, role, active, tickets_served, total_serve_time_ms
	`, uuid.NewString(), input.Username, input.PasswordHash, input.Name, input.CounterNumber, role)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrEmployeeExists
		}
		return models.Employee{}, err
	}
	return employee, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, input store.UpdateEmployeeInput) (models.Employee, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE employees
		SET username = COALESCE($1, username),
			password_hash = COALESCE($2, password_hash),
			name = COALESCE($3, name),
			counter_number = COALESCE($4, counter_number),
			role = COALESCE($5, role),
			active = COALESCE($6, active)
		WHERE employee_id = $7
		RETURNING employee_id, username, password_hash, name, counter_number, role, active, tickets_served, total_serve_time_ms
	`, input.Username, input.PasswordHash, input.Name, input.CounterNumber, input.Role, input.Active, input.ID)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrEmployeeNotFound
		}
		return models.Employee{}, err
	}
	return employee, nil
}

func (s *Store) AccrueServe(ctx context.Context, counterNumber int, serveTime time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE employees
		SET tickets_served = tickets_served + 1,
			total_serve_time_ms = total_serve_time_ms + $1
		WHERE counter_number = $2
	`, serveTime.Milliseconds(), counterNumber)
	return err
}

func (s *Store) CreateSession(ctx context.Context, token, employeeID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token, employee_id, created_at)
		VALUES ($1, $2, $3)
	`, token, employeeID, now)
	return err
}

func (s *Store) GetSessionEmployee(ctx context.Context, token string) (models.Employee, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT e.employee_id, e.username, e.password_hash, e.name, e.counter_number, e.role, e.active, e.tickets_served, e.total_serve_time_ms
		FROM sessions s
		JOIN employees e ON e.employee_id = s.employee_id
		WHERE s.token = $1 AND e.active = TRUE
	`, token)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrSessionNotFound
		}
		return models.Employee{}, err
	}
	return employee, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrSettingNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2
	`, key, value)
	return err
}

// classifyMiss turns a zero-row conditional update into the sentinel the
// caller can act on: the ticket either does not exist in the window or is
// in a status the transition does not accept.
func (s *Store) classifyMiss(ctx context.Context, number int, window store.Window) error {
	var status string
	row := s.pool.QueryRow(ctx, `
		SELECT status
		FROM tickets
		WHERE number = $1 AND created_at >= $2 AND created_at < $3
	`, number, window.Start, window.End)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	return store.ErrInvalidState
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var counterNull sql.NullInt32
	var servedAtNull sql.NullTime
	var completedAtNull sql.NullTime
	var reasonNull sql.NullString
	if err := row.Scan(&ticket.Number, &ticket.Status, &counterNull, &ticket.Category, &ticket.CreatedAt, &servedAtNull, &completedAtNull, &ticket.RecallCount, &reasonNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.CounterNumber = nullIntPtr(counterNull)
	ticket.ServedAt = nullTimePtr(servedAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CancelReason = nullStringPtr(reasonNull)
	return ticket, nil
}

func scanCounter(row pgx.Row) (models.Counter, error) {
	var counter models.Counter
	var currentNull sql.NullInt32
	if err := row.Scan(&counter.Number, &counter.EmployeeName, &currentNull, &counter.Status); err != nil {
		return models.Counter{}, err
	}
	counter.CurrentTicket = nullIntPtr(currentNull)
	return counter, nil
}

func scanEmployee(row pgx.Row) (models.Employee, error) {
	var employee models.Employee
	if err := row.Scan(&employee.ID, &employee.Username, &employee.PasswordHash, &employee.Name, &employee.CounterNumber, &employee.Role, &employee.Active, &employee.TicketsServed, &employee.TotalServeTimeMs); err != nil {
		return models.Employee{}, err
	}
	return employee, nil
}

func nullIntPtr(value sql.NullInt32) *int {
	if !value.Valid {
		return nil
	}
	number := int(value.Int32)
	return &number
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
