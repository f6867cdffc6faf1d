// Package analytics derives reporting views from the ticket store. It only
// reads; per-employee serve totals come from the store's accumulators, which
// the queue service maintains at completion time.
package analytics

import (
	"context"
	"math"
	"time"

	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/store"
)

type Aggregator struct {
	store store.TicketStore
}

func NewAggregator(st store.TicketStore) *Aggregator {
	return &Aggregator{store: st}
}

type Report struct {
	Date            string         `json:"date"`
	TotalToday      int            `json:"total_today"`
	Waiting         int            `json:"waiting"`
	Serving         int            `json:"serving"`
	Served          int            `json:"served"`
	Cancelled       int            `json:"cancelled"`
	AvgWaitMinutes  int            `json:"avg_wait_minutes"`
	AvgServeMinutes int            `json:"avg_serve_minutes"`
	HourlyCreated   [24]int        `json:"hourly_created"`
	PerCounter      []CounterStat  `json:"per_counter"`
	Week            []DayStat      `json:"week"`
	Employees       []EmployeeStat `json:"employees"`
}

// CounterStat counts every ticket dispatched to the counter today,
// whatever state it ended in.
type CounterStat struct {
	Counter int `json:"counter"`
	Handled int `json:"handled"`
}

type DayStat struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Served    int    `json:"served"`
	Cancelled int    `json:"cancelled"`
}

type EmployeeStat struct {
	Name            string `json:"name"`
	CounterNumber   int    `json:"counter_number"`
	TicketsServed   int    `json:"tickets_served"`
	AvgServeMinutes int    `json:"avg_serve_minutes"`
}

// Report builds today's totals, the trailing 7-day breakdown, and
// per-employee averages as of now.
func (a *Aggregator) Report(ctx context.Context, now time.Time) (Report, error) {
	window := store.Today(now)
	weekStart := window.Start.AddDate(0, 0, -6)

	tickets, err := a.store.ListTicketsBetween(ctx, weekStart, window.End)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Date:       window.Start.Format("2006-01-02"),
		PerCounter: []CounterStat{},
		Employees:  []EmployeeStat{},
	}

	days := make([]DayStat, 7)
	for i := range days {
		days[i].Date = weekStart.AddDate(0, 0, i).Format("2006-01-02")
	}
	counterHandled := make(map[int]int)
	var waitTotal, serveTotal time.Duration
	waited, servedTimed := 0, 0

	for _, t := range tickets {
		day := int(t.CreatedAt.Sub(weekStart).Hours() / 24)
		if day >= 0 && day < 7 {
			days[day].Total++
			switch t.Status {
			case models.StatusServed:
				days[day].Served++
			case models.StatusCancelled:
				days[day].Cancelled++
			}
		}

		if !window.Contains(t.CreatedAt) {
			continue
		}
		report.TotalToday++
		report.HourlyCreated[t.CreatedAt.In(now.Location()).Hour()]++
		switch t.Status {
		case models.StatusWaiting:
			report.Waiting++
		case models.StatusServing:
			report.Serving++
		case models.StatusServed:
			report.Served++
		case models.StatusCancelled:
			report.Cancelled++
		}
		if t.CounterNumber != nil {
			counterHandled[*t.CounterNumber]++
		}
		if t.ServedAt != nil {
			if d := t.ServedAt.Sub(t.CreatedAt); d > 0 {
				waitTotal += d
			}
			waited++
		}
		if t.ServedAt != nil && t.CompletedAt != nil {
			if d := t.CompletedAt.Sub(*t.ServedAt); d > 0 {
				serveTotal += d
			}
			servedTimed++
		}
	}

	if waited > 0 {
		report.AvgWaitMinutes = int(math.Round(waitTotal.Minutes() / float64(waited)))
	}
	if servedTimed > 0 {
		report.AvgServeMinutes = int(math.Round(serveTotal.Minutes() / float64(servedTimed)))
	}
	report.Week = days

	counters, err := a.store.ListCounters(ctx)
	if err != nil {
		return Report{}, err
	}
	for _, counter := range counters {
		report.PerCounter = append(report.PerCounter, CounterStat{
			Counter: counter.Number,
			Handled: counterHandled[counter.Number],
		})
	}

	employees, err := a.store.ListEmployees(ctx)
	if err != nil {
		return Report{}, err
	}
	for _, employee := range employees {
		stat := EmployeeStat{
			Name:          employee.Name,
			CounterNumber: employee.CounterNumber,
			TicketsServed: employee.TicketsServed,
		}
		if employee.TicketsServed > 0 {
			perTicketMs := float64(employee.TotalServeTimeMs) / float64(employee.TicketsServed)
			stat.AvgServeMinutes = int(math.Round(perTicketMs / 60000))
		}
		report.Employees = append(report.Employees, stat)
	}

	return report, nil
}
