// Package pricing computes order totals from a price table.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/shared"
)

// Size is the meal size.
type Size string

const (
	SizeSmall  Size = "P"
	SizeMedium Size = "M"
	SizeLarge  Size = "G"
)

// Sizes lists every size in display order.
var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge}

// ErrInvalidSize is returned for sizes outside P, M and G.
var ErrInvalidSize = fmt.Errorf("%w: invalid meal size", shared.ErrValidation)

// ParseSize is case-insensitive.
func ParseSize(raw string) (Size, error) {
	switch Size(strings.ToUpper(strings.TrimSpace(raw))) {
	case SizeSmall:
		return SizeSmall, nil
	case SizeMedium:
		return SizeMedium, nil
	case SizeLarge:
		return SizeLarge, nil
	default:
		return "", ErrInvalidSize
	}
}

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	default:
		return false
	}
}

// PriceTable holds the unit price per size.
type PriceTable struct {
	Small  decimal.Decimal `json:"P"`
	Medium decimal.Decimal `json:"M"`
	Large  decimal.Decimal `json:"G"`
}

// DefaultPriceTable is used until an administrator saves custom prices.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Small:  decimal.NewFromInt(15),
		Medium: decimal.NewFromInt(18),
		Large:  decimal.NewFromInt(22),
	}
}

// UnitPrice returns the price for a single meal of the given size.
func (t PriceTable) UnitPrice(size Size) (decimal.Decimal, error) {
	switch size {
	case SizeSmall:
		return t.Small, nil
	case SizeMedium:
		return t.Medium, nil
	case SizeLarge:
		return t.Large, nil
	default:
		return decimal.Zero, ErrInvalidSize
	}
}

// Validate requires every price to be positive.
func (t PriceTable) Validate() error {
	var errs []error
	for _, size := range Sizes {
		price, _ := t.UnitPrice(size)
		if !price.IsPositive() {
			errs = append(errs, fmt.Errorf("price for size %s must be greater than zero", size))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", shared.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// ExtraItem is an add-on charged per unit.
type ExtraItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Breakdown is the result of pricing an order. Every field has two decimal places.
type Breakdown struct {
	MealsSubtotal  decimal.Decimal `json:"meals_subtotal"`
	ExtrasSubtotal decimal.Decimal `json:"extras_subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
}
