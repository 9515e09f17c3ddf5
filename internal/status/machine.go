// Package status holds the lifecycle rules for orders and sales.
package status

import (
	"errors"
	"fmt"

	"github.com/noah-isme/kasir-api/internal/domain"
)

var (
	// ErrInvalidTransition is returned for a lifecycle move the machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotEditable is returned when a non-pending order is edited.
	ErrNotEditable = errors.New("order is not editable")
	// ErrItemsImmutable is returned for any attempt to change order items after creation.
	ErrItemsImmutable = errors.New("order items cannot be changed; cancel and recreate the order")
)

var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderPending: {domain.OrderCompleted, domain.OrderCancelled},
}

var saleTransitions = map[domain.SaleStatus][]domain.SaleStatus{
	domain.SaleCompleted:       {domain.SalePartialRefunded, domain.SaleRefunded},
	domain.SalePartialRefunded: {domain.SalePartialRefunded, domain.SaleRefunded},
}

// OrderTransition validates moving an order from one status to another.
func OrderTransition(from, to domain.OrderStatus) error {
	for _, next := range orderTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("order %s -> %s: %w", from, to, ErrInvalidTransition)
}

// SaleTransition validates moving a sale from one status to another.
// partial_refunded may repeat for successive partial refunds; nothing leaves refunded.
func SaleTransition(from, to domain.SaleStatus) error {
	for _, next := range saleTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("sale %s -> %s: %w", from, to, ErrInvalidTransition)
}

// Refundable reports whether a sale in this status may accept a refund.
func Refundable(s domain.SaleStatus) bool {
	return s == domain.SaleCompleted || s == domain.SalePartialRefunded
}

// OrderEditable reports whether delivery date and rates may still change.
func OrderEditable(s domain.OrderStatus) bool {
	return s == domain.OrderPending
}

// CheckOrderEdit validates an edit request against the order status.
func CheckOrderEdit(s domain.OrderStatus, touchesItems bool) error {
	if touchesItems {
		return ErrItemsImmutable
	}
	if !OrderEditable(s) {
		return fmt.Errorf("order is %s: %w", s, ErrNotEditable)
	}
	return nil
}
