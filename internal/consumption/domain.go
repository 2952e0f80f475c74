// Package consumption records the meals delivered to each company.
package consumption

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/pricing"
)

// ErrCompanyInactive is returned when recording meals for a disabled company.
var ErrCompanyInactive = errors.New("consumption: company is inactive")

// Record is an immutable delivery entry. Money fields are computed at creation.
type Record struct {
	ID            int64               `json:"id"`
	CompanyID     int64               `json:"company_id"`
	CompanyName   string              `json:"company_name,omitempty"`
	Responsible   string              `json:"responsible"`
	Date          time.Time           `json:"date"`
	Size          pricing.Size        `json:"size"`
	Quantity      int                 `json:"quantity"`
	Extras        []pricing.ExtraItem `json:"extras"`
	MealsValue    decimal.Decimal     `json:"meals_value"`
	ExtrasValue   decimal.Decimal     `json:"extras_value"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Notes         string              `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// CreateInput is an operator's manual entry.
type CreateInput struct {
	CompanyID int64               `json:"company_id" validate:"gt=0"`
	Date      string              `json:"date" validate:"required,datetime=2006-01-02"`
	Size      string              `json:"size" validate:"required"`
	Quantity  int                 `json:"quantity" validate:"min=1"`
	Extras    []pricing.ExtraItem `json:"extras"`
	Notes     string              `json:"notes" validate:"max=1000"`
}

// Filter narrows List results. Zero values mean no restriction.
type Filter struct {
	Date      time.Time
	From      time.Time
	To        time.Time
	CompanyID int64
}

// DailyStats summarises a set of records.
type DailyStats struct {
	TotalQuantity int                  `json:"total_quantity"`
	BySize        map[pricing.Size]int `json:"by_size"`
	TotalValue    decimal.Decimal      `json:"total_value"`
	ExtrasValue   decimal.Decimal      `json:"extras_value"`
	Companies     int                  `json:"companies"`
	Orders        int                  `json:"orders"`
}

// Summarize aggregates records. It is pure.
func Summarize(records []Record) DailyStats {
	stats := DailyStats{
		BySize:      map[pricing.Size]int{pricing.SizeSmall: 0, pricing.SizeMedium: 0, pricing.SizeLarge: 0},
		TotalValue:  decimal.Zero,
		ExtrasValue: decimal.Zero,
	}
	companies := make(map[int64]struct{})
	for _, r := range records {
		stats.Orders++
		stats.TotalQuantity += r.Quantity
		stats.BySize[r.Size] += r.Quantity
		stats.TotalValue = stats.TotalValue.Add(r.TotalPrice)
		stats.ExtrasValue = stats.ExtrasValue.Add(r.ExtrasValue)
		companies[r.CompanyID] = struct{}{}
	}
	stats.Companies = len(companies)
	return stats
}
