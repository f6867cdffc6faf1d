package store

import (
	"testing"
	"time"
)

func TestTodayWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	win := Today(now)

	if !win.Start.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", win.Start)
	}
	if !win.End.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", win.End)
	}
	if !win.Contains(now) {
		t.Fatalf("window should contain now")
	}
	if !win.Contains(win.Start) {
		t.Fatalf("window start is inclusive")
	}
	if win.Contains(win.End) {
		t.Fatalf("window end is exclusive")
	}
	if win.Contains(win.Start.Add(-time.Second)) {
		t.Fatalf("yesterday must be outside the window")
	}
}
