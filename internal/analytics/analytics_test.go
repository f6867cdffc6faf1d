package analytics

import (
	"context"
	"testing"
	"time"

	"flowq/queue-service/internal/hub"
	"flowq/queue-service/internal/queue"
	"flowq/queue-service/internal/store"
	"flowq/queue-service/internal/store/memory"
)

func TestReport(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	h := hub.New()
	defer h.Close()

	current := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc := queue.NewService(st, h, queue.Options{Now: func() time.Time { return current }})

	if _, err := st.CreateEmployee(ctx, store.CreateEmployeeInput{
		Username: "ana", PasswordHash: "x", Name: "Ana", CounterNumber: 1,
	}); err != nil {
		t.Fatalf("create employee: %v", err)
	}

	// Yesterday: one ticket served end to end.
	current = current.AddDate(0, 0, -1)
	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.DispatchNext(ctx, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := svc.CompleteCurrent(ctx, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Today: one served after a 6 minute wait and 4 minute service, one
	// waiting, one cancelled by the recall policy.
	current = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	current = current.Add(6 * time.Minute)
	if _, err := svc.DispatchNext(ctx, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	current = current.Add(4 * time.Minute)
	if _, err := svc.CompleteCurrent(ctx, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.DispatchNext(ctx, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Recall(ctx, 1); err != nil {
			t.Fatalf("recall: %v", err)
		}
	}
	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	report, err := NewAggregator(st).Report(ctx, current)
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if report.Date != "2026-08-28" {
		t.Fatalf("date = %q", report.Date)
	}
	if report.TotalToday != 3 || report.Served != 1 || report.Waiting != 1 || report.Cancelled != 1 {
		t.Fatalf("today = %+v", report)
	}
	if report.AvgServeMinutes != 4 {
		t.Fatalf("avg serve = %d", report.AvgServeMinutes)
	}
	if report.AvgWaitMinutes != 3 {
		t.Fatalf("avg wait = %d", report.AvgWaitMinutes)
	}
	if report.HourlyCreated[10] != 3 {
		t.Fatalf("hourly = %v", report.HourlyCreated)
	}

	if len(report.Week) != 7 {
		t.Fatalf("week has %d days", len(report.Week))
	}
	yesterday := report.Week[5]
	if yesterday.Date != "2026-08-27" || yesterday.Total != 1 || yesterday.Served != 1 {
		t.Fatalf("yesterday = %+v", yesterday)
	}
	today := report.Week[6]
	if today.Total != 3 || today.Served != 1 || today.Cancelled != 1 {
		t.Fatalf("today bucket = %+v", today)
	}

	// Counter 1 handled the served ticket and the no-show; the waiting
	// ticket was never dispatched.
	if len(report.PerCounter) != 1 || report.PerCounter[0].Counter != 1 || report.PerCounter[0].Handled != 2 {
		t.Fatalf("per counter = %+v", report.PerCounter)
	}

	if len(report.Employees) != 1 {
		t.Fatalf("employees = %+v", report.Employees)
	}
	ana := report.Employees[0]
	if ana.TicketsServed != 2 {
		t.Fatalf("tickets served = %d", ana.TicketsServed)
	}
	if ana.AvgServeMinutes != 3 {
		t.Fatalf("avg serve = %d", ana.AvgServeMinutes)
	}
}

func TestReportRoundsAverages(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	h := hub.New()
	defer h.Close()

	current := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	svc := queue.NewService(st, h, queue.Options{Now: func() time.Time { return current }})

	if _, err := st.CreateEmployee(ctx, store.CreateEmployeeInput{
		Username: "ana", PasswordHash: "x", Name: "Ana", CounterNumber: 1,
	}); err != nil {
		t.Fatalf("create employee: %v", err)
	}

	// 150s wait, 90s service: both round up, never truncate.
	if _, err := svc.Enqueue(ctx, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	current = current.Add(150 * time.Second)
	if _, err := svc.DispatchNext(ctx, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	current = current.Add(90 * time.Second)
	if _, err := svc.CompleteCurrent(ctx, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}

	report, err := NewAggregator(st).Report(ctx, current)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.AvgWaitMinutes != 3 {
		t.Fatalf("avg wait = %d, want 3 for a 150s wait", report.AvgWaitMinutes)
	}
	if report.AvgServeMinutes != 2 {
		t.Fatalf("avg serve = %d, want 2 for a 90s service", report.AvgServeMinutes)
	}
	if len(report.Employees) != 1 || report.Employees[0].AvgServeMinutes != 2 {
		t.Fatalf("employees = %+v", report.Employees)
	}
}

func TestReportEmptyDay(t *testing.T) {
	st := memory.NewStore()
	report, err := NewAggregator(st).Report(context.Background(), time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalToday != 0 || report.AvgWaitMinutes != 0 || report.AvgServeMinutes != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Week) != 7 {
		t.Fatalf("week has %d days", len(report.Week))
	}
}
