package models

import "time"

type Ticket struct {
	Number        int        `json:"number"`
	Status        string     `json:"status"`
	CounterNumber *int       `json:"counter_number,omitempty"`
	Category      string     `json:"category"`
	CreatedAt     time.Time  `json:"created_at"`
	ServedAt      *time.Time `json:"served_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RecallCount   int        `json:"recall_count"`
	CancelReason  *string    `json:"cancel_reason,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

const DefaultCategory = "General Inquiry"
