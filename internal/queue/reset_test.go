package queue

import (
	"context"
	"testing"
	"time"

	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/store"
)

func TestRunIfDueWaitsForConfiguredTime(t *testing.T) {
	svc, st, _, clock := newTestService(t)
	ctx := context.Background()
	scheduler := NewResetScheduler(st, svc, "03:00")

	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// 02:30, half an hour before the gate.
	early := time.Date(2026, 8, 28, 2, 30, 0, 0, time.UTC)
	ran, err := scheduler.RunIfDue(ctx, early)
	if err != nil {
		t.Fatalf("run early: %v", err)
	}
	if ran {
		t.Fatalf("reset ran before the configured time")
	}

	ran, err = scheduler.RunIfDue(ctx, clock.Now())
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if !ran {
		t.Fatalf("reset did not run after the configured time")
	}

	ticket, err := st.GetTicketByNumber(ctx, 1, store.Today(clock.Now()))
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Status != models.StatusCancelled {
		t.Fatalf("ticket status = %q", ticket.Status)
	}
}

func TestRunIfDueIsIdempotentPerDay(t *testing.T) {
	svc, st, _, clock := newTestService(t)
	ctx := context.Background()
	scheduler := NewResetScheduler(st, svc, "00:00")

	ran, err := scheduler.RunIfDue(ctx, clock.Now())
	if err != nil || !ran {
		t.Fatalf("first run: ran=%v err=%v", ran, err)
	}
	for i := 0; i < 3; i++ {
		ran, err = scheduler.RunIfDue(ctx, clock.Now())
		if err != nil {
			t.Fatalf("repeat run: %v", err)
		}
		if ran {
			t.Fatalf("reset ran twice in one day")
		}
	}

	// The next day it is due again.
	clock.Advance(24 * time.Hour)
	ran, err = scheduler.RunIfDue(ctx, clock.Now())
	if err != nil || !ran {
		t.Fatalf("next day run: ran=%v err=%v", ran, err)
	}
}

func TestRunIfDueHonorsStoredSetting(t *testing.T) {
	svc, st, _, clock := newTestService(t)
	ctx := context.Background()
	scheduler := NewResetScheduler(st, svc, "00:00")

	// Admin moved the reset to the evening; the default no longer applies.
	if err := st.SetSetting(ctx, store.SettingAutoResetTime, "22:00"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	ran, err := scheduler.RunIfDue(ctx, clock.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran {
		t.Fatalf("reset ran before the stored time")
	}

	clock.Advance(14 * time.Hour)
	ran, err = scheduler.RunIfDue(ctx, clock.Now())
	if err != nil || !ran {
		t.Fatalf("evening run: ran=%v err=%v", ran, err)
	}
}

func TestManualResetMarksDayDone(t *testing.T) {
	svc, st, _, clock := newTestService(t)
	ctx := context.Background()
	scheduler := NewResetScheduler(st, svc, "00:00")

	if _, err := svc.ResetQueue(ctx); err != nil {
		t.Fatalf("manual reset: %v", err)
	}

	ran, err := scheduler.RunIfDue(ctx, clock.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran {
		t.Fatalf("scheduler reset again after a manual reset")
	}
}

func TestRunIfDueRejectsBadTime(t *testing.T) {
	svc, st, _, clock := newTestService(t)
	ctx := context.Background()
	scheduler := NewResetScheduler(st, svc, "00:00")

	if err := st.SetSetting(ctx, store.SettingAutoResetTime, "midnight"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if _, err := scheduler.RunIfDue(ctx, clock.Now()); err == nil {
		t.Fatalf("expected parse error")
	}
}
