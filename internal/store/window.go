package store

import "time"

// Window is the [start, end) business-day interval that scopes ticket
// numbering, queue membership, and reset sweeps.
type Window struct {
	Start time.Time
	End   time.Time
}

func Today(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
