package models

type Counter struct {
	Number        int    `json:"number"`
	EmployeeName  string `json:"employee_name"`
	CurrentTicket *int   `json:"current_ticket,omitempty"`
	Status        string `json:"status"`
}

const (
	CounterOpen   = "open"
	CounterClosed = "closed"
)
