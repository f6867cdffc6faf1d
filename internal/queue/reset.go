package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowq/queue-service/internal/store"
)

// ResetScheduler runs the daily sweep at most once per business day. The
// lastResetDate setting is the idempotency marker, so restarts and
// overlapping cron hits never reset twice; the autoResetTime setting (or
// the configured default) gates when in the day the sweep may fire.
type ResetScheduler struct {
	store       store.TicketStore
	service     *Service
	defaultTime string
}

// NewResetScheduler builds a scheduler with a "HH:MM" fallback used until
// an admin stores an autoResetTime setting.
func NewResetScheduler(st store.TicketStore, svc *Service, defaultTime string) *ResetScheduler {
	if defaultTime == "" {
		defaultTime = "00:00"
	}
	return &ResetScheduler{store: st, service: svc, defaultTime: defaultTime}
}

// RunIfDue performs the daily reset when today's has not happened yet and
// the configured wall-clock time has passed. It reports whether a reset
// ran. Safe to call on any interval.
func (r *ResetScheduler) RunIfDue(ctx context.Context, now time.Time) (bool, error) {
	today := now.Format("2006-01-02")

	last, err := r.store.GetSetting(ctx, store.SettingLastResetDate)
	if err != nil && !errors.Is(err, store.ErrSettingNotFound) {
		return false, err
	}
	if last == today {
		return false, nil
	}

	at, err := r.store.GetSetting(ctx, store.SettingAutoResetTime)
	if errors.Is(err, store.ErrSettingNotFound) {
		at = r.defaultTime
	} else if err != nil {
		return false, err
	}

	due, err := wallClock(at, now)
	if err != nil {
		return false, fmt.Errorf("reset time %q: %w", at, err)
	}
	if now.Before(due) {
		return false, nil
	}

	if _, err := r.service.ResetQueue(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// wallClock resolves "HH:MM" against now's date and location.
func wallClock(value string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, now.Location()), nil
}
