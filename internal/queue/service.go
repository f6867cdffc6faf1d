// Package queue implements the counter-side queue operations on top of a
// TicketStore. Every mutation commits to the store first and publishes its
// event afterwards, so subscribers never observe a state the store does not
// already hold.
package queue

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"flowq/queue-service/internal/hub"
	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/store"
)

const (
	// DefaultRecallLimit is the recall count at which a serving ticket is
	// treated as a no-show and cancelled.
	DefaultRecallLimit = 3

	// CancelReasonRecallLimit marks tickets cancelled by the recall policy.
	CancelReasonRecallLimit = "no-show-recall-limit"

	// CancelReasonReset marks tickets swept by a daily or manual reset.
	CancelReasonReset = "daily-reset"
)

// defaultServeMinutes seeds the wait estimate before any ticket has been
// completed today.
const defaultServeMinutes = 5

type Service struct {
	store       store.TicketStore
	hub         *hub.Hub
	now         func() time.Time
	recallLimit int
}

type Options struct {
	Now         func() time.Time
	RecallLimit int
}

func NewService(st store.TicketStore, h *hub.Hub, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := opts.RecallLimit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	return &Service{store: st, hub: h, now: now, recallLimit: limit}
}

type EnqueueResult struct {
	Ticket               models.Ticket `json:"ticket"`
	Position             int           `json:"position"`
	EstimatedWaitMinutes int           `json:"estimated_wait_minutes"`
}

type RecallResult struct {
	Ticket        models.Ticket `json:"ticket"`
	RecallCount   int           `json:"recall_count"`
	AutoCancelled bool          `json:"auto_cancelled"`
}

type Snapshot struct {
	Waiting             []models.Ticket `json:"waiting"`
	Serving             []models.Ticket `json:"serving"`
	Served              []models.Ticket `json:"served"`
	TotalToday          int             `json:"total_today"`
	AvgServeTimeMinutes int             `json:"avg_serve_time_minutes"`
}

// TicketEvent is the payload for single-ticket events.
type TicketEvent struct {
	Ticket  models.Ticket `json:"ticket"`
	Counter int           `json:"counter,omitempty"`
}

type CreatedEvent struct {
	Ticket               models.Ticket `json:"ticket"`
	Position             int           `json:"position"`
	EstimatedWaitMinutes int           `json:"estimated_wait_minutes"`
}

type TransferEvent struct {
	Ticket models.Ticket `json:"ticket"`
	From   int           `json:"from"`
	To     int           `json:"to"`
}

type ResetEvent struct {
	Cancelled int    `json:"cancelled"`
	Date      string `json:"date"`
}

// Enqueue issues the next ticket number of the current business day.
func (s *Service) Enqueue(ctx context.Context, category string) (EnqueueResult, error) {
	if category == "" {
		category = models.DefaultCategory
	}
	now := s.now()

	ticket, err := s.store.EnqueueTicket(ctx, category, now)
	if err != nil {
		return EnqueueResult{}, err
	}

	tickets, err := s.store.ListTicketsInWindow(ctx, store.Today(now))
	if err != nil {
		return EnqueueResult{}, err
	}
	position := 1
	for _, t := range tickets {
		if t.Status == models.StatusWaiting && t.Number < ticket.Number {
			position++
		}
	}
	result := EnqueueResult{
		Ticket:               ticket,
		Position:             position,
		EstimatedWaitMinutes: position * avgServeMinutes(tickets),
	}

	s.publish(hub.EventTicketCreated, CreatedEvent{
		Ticket:               ticket,
		Position:             position,
		EstimatedWaitMinutes: result.EstimatedWaitMinutes,
	})
	return result, nil
}

// DispatchNext assigns the oldest waiting ticket to the counter. A ticket
// the counter is still serving is completed first; the employee pressing
// "next" is the signal that the previous visitor is done. A nil ticket
// means the queue is empty.
func (s *Service) DispatchNext(ctx context.Context, counterNumber int) (*models.Ticket, error) {
	now := s.now()
	window := store.Today(now)

	// Dispatching reopens a closed counter and registers an unknown one.
	counter, err := s.store.UpsertCounter(ctx, counterNumber, "")
	if err != nil {
		return nil, err
	}

	if counter.CurrentTicket != nil {
		if _, err := s.finishTicket(ctx, *counter.CurrentTicket, counterNumber, window, now); err != nil &&
			!errors.Is(err, store.ErrInvalidState) && !errors.Is(err, store.ErrTicketNotFound) {
			return nil, err
		}
	}

	ticket, ok, err := s.store.ClaimOldestWaiting(ctx, counterNumber, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.store.SetCurrentTicket(ctx, counterNumber, &ticket.Number); err != nil {
		return nil, err
	}
	s.publish(hub.EventTicketCalled, TicketEvent{Ticket: ticket, Counter: counterNumber})
	return &ticket, nil
}

// CompleteCurrent finishes the counter's serving ticket. With no ticket in
// progress it is a no-op and returns a nil ticket.
func (s *Service) CompleteCurrent(ctx context.Context, counterNumber int) (*models.Ticket, error) {
	now := s.now()
	window := store.Today(now)

	counter, err := s.store.GetCounter(ctx, counterNumber)
	if errors.Is(err, store.ErrCounterNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if counter.CurrentTicket == nil {
		return nil, nil
	}

	ticket, err := s.finishTicket(ctx, *counter.CurrentTicket, counterNumber, window, now)
	if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrTicketNotFound) {
		// Stale pointer, e.g. the ticket was swept by a reset.
		if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Recall re-announces the counter's serving ticket. With no ticket in
// progress it is a no-op and returns a nil result. Reaching the recall
// limit cancels the ticket as a no-show instead; that path publishes only
// ticket-auto-cancelled, not another recall.
func (s *Service) Recall(ctx context.Context, counterNumber int) (*RecallResult, error) {
	now := s.now()
	window := store.Today(now)

	counter, err := s.store.GetCounter(ctx, counterNumber)
	if err != nil {
		return nil, err
	}
	if counter.CurrentTicket == nil {
		return nil, nil
	}
	number := *counter.CurrentTicket

	count, err := s.store.IncrementRecall(ctx, number, window)
	if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrTicketNotFound) {
		// Stale pointer, e.g. the ticket was swept by a reset.
		if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if count < s.recallLimit {
		ticket, err := s.store.GetTicketByNumber(ctx, number, window)
		if err != nil {
			return nil, err
		}
		s.publish(hub.EventTicketRecalled, TicketEvent{Ticket: ticket, Counter: counterNumber})
		return &RecallResult{Ticket: ticket, RecallCount: count}, nil
	}

	reason := CancelReasonRecallLimit
	ticket, err := s.store.TransitionTicket(ctx, store.TransitionInput{
		Number:       number,
		Window:       window,
		FromStatus:   models.StatusServing,
		ToStatus:     models.StatusCancelled,
		CancelReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
		return nil, err
	}
	s.publish(hub.EventTicketAutoCancelled, TicketEvent{Ticket: ticket, Counter: counterNumber})
	return &RecallResult{Ticket: ticket, RecallCount: count, AutoCancelled: true}, nil
}

// Transfer hands the counter's serving ticket to another open counter. A
// target that is closed reports ErrCounterNotFound, one already serving a
// ticket ErrCounterBusy.
func (s *Service) Transfer(ctx context.Context, counterNumber, targetCounter int) (models.Ticket, error) {
	if counterNumber == targetCounter {
		return models.Ticket{}, store.ErrCounterBusy
	}
	now := s.now()
	window := store.Today(now)

	from, err := s.store.GetCounter(ctx, counterNumber)
	if err != nil {
		return models.Ticket{}, err
	}
	if from.CurrentTicket == nil {
		return models.Ticket{}, store.ErrNoTicket
	}

	target, err := s.store.GetCounter(ctx, targetCounter)
	if err != nil {
		return models.Ticket{}, err
	}
	if target.Status != models.CounterOpen {
		return models.Ticket{}, store.ErrCounterNotFound
	}
	if target.CurrentTicket != nil {
		return models.Ticket{}, store.ErrCounterBusy
	}

	servedAt := now
	targetNum := targetCounter
	ticket, err := s.store.TransitionTicket(ctx, store.TransitionInput{
		Number:        *from.CurrentTicket,
		Window:        window,
		FromStatus:    models.StatusServing,
		ToStatus:      models.StatusServing,
		CounterNumber: &targetNum,
		ServedAt:      &servedAt,
	})
	if err != nil {
		return models.Ticket{}, err
	}
	if err := s.store.SetCurrentTicket(ctx, counterNumber, nil); err != nil {
		return models.Ticket{}, err
	}
	if err := s.store.SetCurrentTicket(ctx, targetCounter, &ticket.Number); err != nil {
		return models.Ticket{}, err
	}

	s.publish(hub.EventTicketTransferred, TransferEvent{Ticket: ticket, From: counterNumber, To: targetCounter})
	s.publish(hub.EventTicketCalled, TicketEvent{Ticket: ticket, Counter: targetCounter})
	return ticket, nil
}

// ResetQueue cancels every active ticket of the current business day,
// clears all counter assignments, and records the day as reset. Ticket
// numbering is day-keyed, so the next business day starts at 1 regardless
// of when the sweep ran.
func (s *Service) ResetQueue(ctx context.Context) (int, error) {
	now := s.now()
	window := store.Today(now)

	cancelled, err := s.store.CancelActiveTickets(ctx, window, CancelReasonReset)
	if err != nil {
		return 0, err
	}
	if err := s.store.ClearAllCurrentTickets(ctx); err != nil {
		return 0, err
	}
	date := window.Start.Format("2006-01-02")
	if err := s.store.SetSetting(ctx, store.SettingLastResetDate, date); err != nil {
		return 0, err
	}

	s.publish(hub.EventQueueReset, ResetEvent{Cancelled: cancelled, Date: date})
	return cancelled, nil
}

// Snapshot reports the current business day for displays and kiosks.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	tickets, err := s.store.ListTicketsInWindow(ctx, store.Today(s.now()))
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Waiting:             []models.Ticket{},
		Serving:             []models.Ticket{},
		Served:              []models.Ticket{},
		TotalToday:          len(tickets),
		AvgServeTimeMinutes: avgServeMinutes(tickets),
	}
	for _, t := range tickets {
		switch t.Status {
		case models.StatusWaiting:
			snap.Waiting = append(snap.Waiting, t)
		case models.StatusServing:
			snap.Serving = append(snap.Serving, t)
		case models.StatusServed:
			snap.Served = append(snap.Served, t)
		}
	}
	return snap, nil
}

func (s *Service) OpenCounter(ctx context.Context, number int, employeeName string) (models.Counter, error) {
	return s.store.UpsertCounter(ctx, number, employeeName)
}

func (s *Service) CloseCounter(ctx context.Context, number int) error {
	return s.store.CloseCounter(ctx, number)
}

func (s *Service) ListCounters(ctx context.Context) ([]models.Counter, error) {
	return s.store.ListCounters(ctx)
}

// finishTicket moves a serving ticket to served, credits the employee at
// the counter, and publishes ticket-completed.
func (s *Service) finishTicket(ctx context.Context, number, counterNumber int, window store.Window, now time.Time) (models.Ticket, error) {
	completedAt := now
	ticket, err := s.store.TransitionTicket(ctx, store.TransitionInput{
		Number:      number,
		Window:      window,
		FromStatus:  models.StatusServing,
		ToStatus:    models.StatusServed,
		CompletedAt: &completedAt,
	})
	if err != nil {
		return models.Ticket{}, err
	}

	var serveTime time.Duration
	if ticket.ServedAt != nil && completedAt.After(*ticket.ServedAt) {
		serveTime = completedAt.Sub(*ticket.ServedAt)
	}
	if err := s.store.AccrueServe(ctx, counterNumber, serveTime); err != nil {
		log.Printf("accrue serve counter=%d: %v", counterNumber, err)
	}

	s.publish(hub.EventTicketCompleted, TicketEvent{Ticket: ticket, Counter: counterNumber})
	return ticket, nil
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.hub != nil {
		s.hub.Publish(eventType, payload)
	}
}

// avgServeMinutes averages completedAt-servedAt over today's served
// tickets, rounded to whole minutes, defaulting before the first
// completion and never reporting below one minute.
func avgServeMinutes(tickets []models.Ticket) int {
	var total time.Duration
	served := 0
	for _, t := range tickets {
		if t.Status != models.StatusServed || t.ServedAt == nil || t.CompletedAt == nil {
			continue
		}
		if d := t.CompletedAt.Sub(*t.ServedAt); d > 0 {
			total += d
		}
		served++
	}
	if served == 0 {
		return defaultServeMinutes
	}
	minutes := int(math.Round(total.Minutes() / float64(served)))
	if minutes < 1 {
		return 1
	}
	return minutes
}
