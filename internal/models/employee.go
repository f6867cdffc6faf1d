package models

type Employee struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	PasswordHash     string `json:"-"`
	Name             string `json:"name"`
	CounterNumber    int    `json:"counter_number"`
	Role             string `json:"role"`
	Active           bool   `json:"active"`
	TicketsServed    int    `json:"tickets_served"`
	TotalServeTimeMs int64  `json:"total_serve_time_ms"`
}

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)
