package store

import "errors"

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrNoTicket         = errors.New("no ticket available")
	ErrCounterNotFound  = errors.New("counter not found")
	ErrCounterBusy      = errors.New("counter busy")
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmployeeExists   = errors.New("employee already exists")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSettingNotFound  = errors.New("setting not found")
)
