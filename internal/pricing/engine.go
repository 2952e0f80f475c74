package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/shared"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ComputeOrderTotal prices quantity meals of size plus extras, minus the
// company discount percentage. Inputs are rejected, never clamped.
func ComputeOrderTotal(size Size, quantity int, extras []ExtraItem, discountPercent decimal.Decimal, table PriceTable) (Breakdown, error) {
	if quantity < 0 {
		return Breakdown{}, fmt.Errorf("%w: quantity must not be negative", shared.ErrValidation)
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return Breakdown{}, fmt.Errorf("%w: discount must be between 0 and 100", shared.ErrValidation)
	}
	unit, err := table.UnitPrice(size)
	if err != nil {
		return Breakdown{}, err
	}

	meals := unit.Mul(decimal.NewFromInt(int64(quantity)))
	extrasTotal := decimal.Zero
	for i, extra := range extras {
		if strings.TrimSpace(extra.Name) == "" {
			return Breakdown{}, fmt.Errorf("%w: extra %d has no name", shared.ErrValidation, i+1)
		}
		if extra.UnitPrice.IsNegative() || extra.Quantity < 0 {
			return Breakdown{}, fmt.Errorf("%w: extra %q has a negative price or quantity", shared.ErrValidation, extra.Name)
		}
		extrasTotal = extrasTotal.Add(extra.UnitPrice.Mul(decimal.NewFromInt(int64(extra.Quantity))))
	}

	subtotal := meals.Add(extrasTotal)
	discount := subtotal.Mul(discountPercent).Div(hundred)

	return Breakdown{
		MealsSubtotal:  meals.Round(moneyPlaces),
		ExtrasSubtotal: extrasTotal.Round(moneyPlaces),
		DiscountAmount: discount.Round(moneyPlaces),
		GrandTotal:     subtotal.Sub(discount).Round(moneyPlaces),
	}, nil
}
