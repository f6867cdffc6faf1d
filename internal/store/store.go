package store

import (
	"context"
	"time"

	"flowq/queue-service/internal/models"
)

// Setting keys shared between the reset scheduler and the admin API.
const (
	SettingAutoResetTime = "autoResetTime"
	SettingLastResetDate = "lastResetDate"
)

// TransitionInput describes one compare-and-set status change. The update
// applies only when the ticket's current status equals FromStatus; every
// higher-level mutation goes through this primitive.
type TransitionInput struct {
	Number        int
	Window        Window
	FromStatus    string
	ToStatus      string
	CounterNumber *int
	ServedAt      *time.Time
	CompletedAt   *time.Time
	CancelReason  *string
}

type CreateEmployeeInput struct {
	Username      string
	PasswordHash  string
	Name          string
	CounterNumber int
	Role          string
}

type UpdateEmployeeInput struct {
	ID            string
	Username      *string
	PasswordHash  *string
	Name          *string
	CounterNumber *int
	Role          *string
	Active        *bool
}

type TicketStore interface {
	// EnqueueTicket assigns the next number in the window containing now.
	// Concurrent callers never observe duplicate or skipped numbers.
	EnqueueTicket(ctx context.Context, category string, now time.Time) (models.Ticket, error)
	GetTicketByNumber(ctx context.Context, number int, window Window) (models.Ticket, error)
	ListTicketsInWindow(ctx context.Context, window Window) ([]models.Ticket, error)
	ListTicketsBetween(ctx context.Context, from, to time.Time) ([]models.Ticket, error)
	TransitionTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	// ClaimOldestWaiting atomically moves the lowest-numbered waiting
	// ticket to serving at the given counter. Racing claims each receive
	// a distinct ticket; the boolean is false when nothing is waiting.
	ClaimOldestWaiting(ctx context.Context, counterNumber int, now time.Time) (models.Ticket, bool, error)
	// IncrementRecall bumps recall_count on the serving ticket and returns
	// the new count. The increment is a single read-modify-write.
	IncrementRecall(ctx context.Context, number int, window Window) (int, error)
	CancelActiveTickets(ctx context.Context, window Window, reason string) (int, error)

	UpsertCounter(ctx context.Context, number int, employeeName string) (models.Counter, error)
	CloseCounter(ctx context.Context, number int) error
	GetCounter(ctx context.Context, number int) (models.Counter, error)
	SetCurrentTicket(ctx context.Context, counterNumber int, ticketNumber *int) error
	ListCounters(ctx context.Context) ([]models.Counter, error)
	ClearAllCurrentTickets(ctx context.Context) error

	GetEmployeeByUsername(ctx context.Context, username string) (models.Employee, error)
	GetEmployeeByCounter(ctx context.Context, counterNumber int) (models.Employee, error)
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	CreateEmployee(ctx context.Context, input CreateEmployeeInput) (models.Employee, error)
	UpdateEmployee(ctx context.Context, input UpdateEmployeeInput) (models.Employee, error)
	// AccrueServe adds one completion and its serve duration to the
	// employee working the counter. No-op when the counter is unstaffed.
	AccrueServe(ctx context.Context, counterNumber int, serveTime time.Duration) error

	CreateSession(ctx context.Context, token, employeeID string, now time.Time) error
	GetSessionEmployee(ctx context.Context, token string) (models.Employee, error)
	DeleteSession(ctx context.Context, token string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
