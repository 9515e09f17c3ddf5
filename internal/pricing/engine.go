package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/domain"
)

var (
	// ErrInvalidPercentage is returned when a tax or discount rate falls outside [0, 100].
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	// ErrInsufficientPayment indicates the tendered amount does not cover the total.
	ErrInsufficientPayment = errors.New("insufficient payment")
)

var hundred = decimal.NewFromInt(100)

// Totals aggregates computed pricing components. Values are unrounded.
type Totals struct {
	Subtotal domain.Money `json:"subtotal"`
	Tax      domain.Money `json:"tax"`
	Discount domain.Money `json:"discount"`
	Total    domain.Money `json:"total"`
}

// ValidatePercentage rejects rates outside [0, 100]. It never clamps.
func ValidatePercentage(name string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%s %s: %w", name, pct.String(), ErrInvalidPercentage)
	}
	return nil
}

// Subtotal sums unit price times quantity over the items.
func Subtotal(items []domain.LineItem) domain.Money {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.Subtotal())
	}
	return subtotal
}

// ComputeTotals calculates subtotal, tax, discount and total for the items.
// Tax and discount are both taken on the subtotal; total = subtotal + tax - discount.
func ComputeTotals(items []domain.LineItem, taxPct, discountPct decimal.Decimal) (Totals, error) {
	if err := ValidatePercentage("tax", taxPct); err != nil {
		return Totals{}, err
	}
	if err := ValidatePercentage("discount", discountPct); err != nil {
		return Totals{}, err
	}
	subtotal := Subtotal(items)
	tax := Percent(subtotal, taxPct)
	discount := Percent(subtotal, discountPct)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(tax).Sub(discount),
	}, nil
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// TaxRate returns the sale-level tax rate (tax / subtotal), zero for an empty sale.
func TaxRate(tax, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return decimal.Zero
	}
	return tax.Div(subtotal)
}

// RatePercent converts an amount back into a percentage of base, as used when
// an order is converted into a sale.
func RatePercent(amount, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(hundred).Div(base)
}

// Change returns tendered minus the presented total, or ErrInsufficientPayment
// when tendered is short.
func Change(total, tendered decimal.Decimal) (decimal.Decimal, error) {
	due := Present(total)
	if tendered.LessThan(due) {
		return decimal.Zero, fmt.Errorf("tendered %s, due %s: %w", Present(tendered).StringFixed(2), due.StringFixed(2), ErrInsufficientPayment)
	}
	return tendered.Sub(due), nil
}

// Present rounds a monetary value to two decimal places for display.
func Present(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Presented returns the totals rounded for display.
func (t Totals) Presented() Totals {
	return Totals{
		Subtotal: Present(t.Subtotal),
		Tax:      Present(t.Tax),
		Discount: Present(t.Discount),
		Total:    Present(t.Total),
	}
}
