package refund

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/status"
)

var (
	// ErrEmptyRefund is returned when no requested line has a positive quantity.
	ErrEmptyRefund = errors.New("refund has no items")
	// ErrUnknownProduct is returned when a requested product is not part of the sale.
	ErrUnknownProduct = errors.New("product not part of the sale")
	// ErrExceedsAvailable is returned when a requested quantity is above what remains refundable.
	ErrExceedsAvailable = errors.New("refund quantity exceeds available quantity")
	// ErrInvalidQuantity is returned for negative requested quantities.
	ErrInvalidQuantity = errors.New("refund quantity must not be negative")
)

// LineError describes the sale line that failed validation.
type LineError struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Err       error  `json:"-"`
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s: product %s requested %d available %d", e.Err, e.ProductID, e.Requested, e.Available)
}

func (e *LineError) Unwrap() error { return e.Err }

// Line reports how much of one sale line remains refundable.
type Line struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	UnitPrice   domain.Money `json:"unit_price"`
	Sold        int          `json:"sold"`
	Refunded    int          `json:"refunded"`
	Available   int          `json:"available"`
}

// Draft is a validated refund ready to be persisted.
type Draft struct {
	Items       []domain.RefundItem
	Subtotal    domain.Money
	TaxRefund   domain.Money
	TotalRefund domain.Money
	// NextStatus is the sale status after this refund is applied.
	NextStatus domain.SaleStatus
	// RefundedUnits and SoldUnits are totals across every line of the sale, including this draft.
	RefundedUnits int
	SoldUnits     int
}

// RefundedSoFar sums refunded quantities per product across prior refunds.
func RefundedSoFar(prior []domain.Refund) map[string]int {
	out := make(map[string]int)
	for _, r := range prior {
		for _, it := range r.Items {
			out[it.ProductID] += it.Quantity
		}
	}
	return out
}

// Availability lists sold, refunded and available quantities per sale line.
func Availability(sale domain.Sale, prior []domain.Refund) []Line {
	refunded := RefundedSoFar(prior)
	lines := make([]Line, 0, len(sale.Items))
	for _, it := range sale.Items {
		done := refunded[it.ProductID]
		lines = append(lines, Line{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Sold:        it.Quantity,
			Refunded:    done,
			Available:   max(0, it.Quantity-done),
		})
	}
	return lines
}

// Validate checks a refund request against the sale and its prior refunds and
// prices it at the original unit prices. Tax is prorated with the sale-level
// rate (tax / subtotal). Repeated product ids in one request are summed and
// zero-quantity lines are ignored.
func Validate(sale domain.Sale, prior []domain.Refund, requested []domain.ItemQty) (Draft, error) {
	sold := make(map[string]domain.LineItem, len(sale.Items))
	for _, it := range sale.Items {
		if existing, ok := sold[it.ProductID]; ok {
			existing.Quantity += it.Quantity
			sold[it.ProductID] = existing
			continue
		}
		sold[it.ProductID] = it
	}

	wanted := make(map[string]int)
	var order []string
	for _, req := range requested {
		if req.Quantity < 0 {
			return Draft{}, &LineError{ProductID: req.ProductID, Requested: req.Quantity, Err: ErrInvalidQuantity}
		}
		if _, ok := sold[req.ProductID]; !ok {
			return Draft{}, &LineError{ProductID: req.ProductID, Requested: req.Quantity, Err: ErrUnknownProduct}
		}
		if req.Quantity == 0 {
			continue
		}
		if _, seen := wanted[req.ProductID]; !seen {
			order = append(order, req.ProductID)
		}
		wanted[req.ProductID] += req.Quantity
	}
	if len(order) == 0 {
		return Draft{}, ErrEmptyRefund
	}

	refunded := RefundedSoFar(prior)
	draft := Draft{Subtotal: decimal.Zero}
	for _, id := range order {
		line := sold[id]
		available := max(0, line.Quantity-refunded[id])
		if wanted[id] > available {
			return Draft{}, &LineError{ProductID: id, Requested: wanted[id], Available: available, Err: ErrExceedsAvailable}
		}
		sub := line.UnitPrice.Mul(decimal.NewFromInt(int64(wanted[id])))
		draft.Items = append(draft.Items, domain.RefundItem{
			ProductID:   id,
			ProductName: line.ProductName,
			Quantity:    wanted[id],
			UnitPrice:   line.UnitPrice,
			Subtotal:    sub,
		})
		draft.Subtotal = draft.Subtotal.Add(sub)
	}

	draft.TaxRefund = decimal.Zero
	if !sale.Subtotal.IsZero() {
		draft.TaxRefund = draft.Subtotal.Mul(sale.Tax).Div(sale.Subtotal)
	}
	draft.TotalRefund = draft.Subtotal.Add(draft.TaxRefund)

	for id, line := range sold {
		draft.SoldUnits += line.Quantity
		draft.RefundedUnits += min(line.Quantity, refunded[id]+wanted[id])
	}
	draft.NextStatus = domain.SaleRefunded
	if draft.RefundedUnits < draft.SoldUnits {
		draft.NextStatus = domain.SalePartialRefunded
	}
	if err := status.SaleTransition(sale.Status, draft.NextStatus); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Apply returns the sale with the draft's status transition applied.
func (d Draft) Apply(sale domain.Sale) domain.Sale {
	sale.Status = d.NextStatus
	sale.IsRefunded = true
	return sale
}

// Record builds the persisted refund for the draft.
func (d Draft) Record(sale domain.Sale, req domain.RefundCreate) domain.Refund {
	return domain.Refund{
		BusinessID:    sale.BusinessID,
		SaleID:        sale.ID,
		Items:         d.Items,
		Reason:        req.Reason,
		Subtotal:      d.Subtotal,
		TaxRefund:     d.TaxRefund,
		TotalRefund:   d.TotalRefund,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
}
