// Package closing aggregates monthly consumption per company and tracks each
// closure through report, invoice and payment.
package closing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/pricing"
)

// Closure is the monthly settlement of one company.
type Closure struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	CompanyName    string          `json:"company_name,omitempty"`
	Month          int             `json:"month"`
	Year           int             `json:"year"`
	TotalP         int             `json:"total_p"`
	TotalM         int             `json:"total_m"`
	TotalG         int             `json:"total_g"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Status         Status          `json:"status"`
	ClosedOn       time.Time       `json:"closed_on"`
	Notes          string          `json:"notes"`
	LastError      string          `json:"last_error,omitempty"`
	LastSentAt     *time.Time      `json:"last_sent_at,omitempty"`
	Overridden     bool            `json:"overridden"`
	OverriddenBy   *int64          `json:"overridden_by,omitempty"`
	OverriddenAt   *time.Time      `json:"overridden_at,omitempty"`
	OverrideReason string          `json:"override_reason,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TotalMeals sums the three size totals.
func (c Closure) TotalMeals() int {
	return c.TotalP + c.TotalM + c.TotalG
}

// Totals is the aggregate of one company's records in a month.
type Totals struct {
	Records int
	TotalP  int
	TotalM  int
	TotalG  int
	Value   decimal.Decimal
}

// AggregateRecords sums quantities by size and record totals. Record totals
// already include the company discount.
func AggregateRecords(records []consumption.Record) Totals {
	t := Totals{Value: decimal.Zero}
	for _, r := range records {
		t.Records++
		switch r.Size {
		case pricing.SizeSmall:
			t.TotalP += r.Quantity
		case pricing.SizeMedium:
			t.TotalM += r.Quantity
		case pricing.SizeLarge:
			t.TotalG += r.Quantity
		}
		t.Value = t.Value.Add(r.TotalPrice)
	}
	return t
}

// UpsertInput carries freshly aggregated totals for one (company, month, year).
type UpsertInput struct {
	CompanyID int64
	Month     int
	Year      int
	Totals    Totals
	ClosedOn  time.Time
}

// GenerateResult reports the closures written by a generate run.
type GenerateResult struct {
	Count    int       `json:"count"`
	Closures []Closure `json:"closures"`
}

// StatusUpdate is the outcome of a transition.
type StatusUpdate struct {
	ID         int64
	Status     Status
	LastError  string
	LastSentAt *time.Time
}

// OverrideInput manually replaces the totals of a closure.
type OverrideInput struct {
	TotalP     int             `json:"total_p" validate:"min=0"`
	TotalM     int             `json:"total_m" validate:"min=0"`
	TotalG     int             `json:"total_g" validate:"min=0"`
	TotalValue decimal.Decimal `json:"total_value"`
	Reason     string          `json:"reason" validate:"required,max=500"`
	ActorID    int64           `json:"-"`
}

// Stats summarises a month of closures.
type Stats struct {
	Companies    int             `json:"companies"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalMeals   int             `json:"total_meals"`
	ByStatus     map[Status]int  `json:"by_status"`
	Sent         int             `json:"sent"`
	Paid         int             `json:"paid"`
	Errors       int             `json:"errors"`
}

// Summarize builds Stats from closures. It is pure.
func Summarize(closures []Closure) Stats {
	stats := Stats{TotalRevenue: decimal.Zero, ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		stats.ByStatus[s] = 0
	}
	for _, c := range closures {
		stats.Companies++
		stats.TotalRevenue = stats.TotalRevenue.Add(c.TotalValue)
		stats.TotalMeals += c.TotalMeals()
		stats.ByStatus[c.Status]++
		switch {
		case c.Status == StatusCompleted:
			stats.Paid++
		case c.Status.IsError():
			stats.Errors++
		case c.Status == StatusReportSent, c.Status == StatusInvoicePending,
			c.Status == StatusInvoiceSent, c.Status == StatusPaymentPending:
			stats.Sent++
		}
	}
	return stats
}
