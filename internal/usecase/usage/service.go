// Package usage reports embedding token consumption against the
// configured budget.
package usage

import (
	"context"
	"time"
)

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}

// Period selects the reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Report is the usage snapshot for one period. Limit 0 means unlimited
// and Remaining is then -1.
type Report struct {
	Period    Period `json:"period"`
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Exhausted bool   `json:"exhausted"`
	ResetsAt  int64  `json:"resets_at"` // unix millis
}

// Service handles usage reporting.
type Service struct {
	br BudgetReader
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br}
}

// GetReport builds the usage report for the given period.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := time.Now().UTC()
	r := Report{Period: period}

	switch period {
	case PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.ResetsAt = monthStart.AddDate(0, 1, 0).UnixMilli()
		if s.br != nil {
			r.Limit = s.br.MonthlyLimit()
			r.Used = s.br.MonthlyUsed()
			r.Remaining = s.br.RemainingMonthly()
		}
	default:
		r.Period = PeriodDay
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.ResetsAt = dayStart.Add(24 * time.Hour).UnixMilli()
		if s.br != nil {
			r.Limit = s.br.DailyLimit()
			r.Used = s.br.DailyUsed()
			r.Remaining = s.br.RemainingDaily()
		}
	}

	if s.br == nil {
		r.Remaining = -1
	}
	r.Exhausted = r.Limit > 0 && r.Remaining <= 0
	return r
}
