package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the referenced record does not exist for the business.
	ErrNotFound = errors.New("not found")
	// ErrNoCustomerSelected is returned when an order is created without a customer.
	ErrNoCustomerSelected = errors.New("no customer selected")
	// ErrInsufficientStock indicates on-hand stock cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a uniqueness rule was violated, such as a duplicate customer email.
	ErrConflict = errors.New("already exists")
)

// ItemQty references a product and quantity in an outbound request.
type ItemQty struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// SaleCreate is the checkout submission.
type SaleCreate struct {
	Items              []ItemQty     `json:"items" validate:"dive"`
	TaxPercentage      Money         `json:"tax_percentage"`
	DiscountPercentage Money         `json:"discount_percentage"`
	PaymentMethod      PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit_card debit_card bank_transfer"`
	CustomerID         string        `json:"customer_id,omitempty"`
	Tendered           *Money        `json:"tendered,omitempty"`
	Notes              string        `json:"notes,omitempty" validate:"max=500"`
}

// OrderCreate is the order creation submission.
type OrderCreate struct {
	CustomerID         string    `json:"customer_id"`
	Items              []ItemQty `json:"items" validate:"dive"`
	DeliveryDate       time.Time `json:"delivery_date" validate:"required"`
	TaxPercentage      Money     `json:"tax_percentage"`
	DiscountPercentage Money     `json:"discount_percentage"`
}

// OrderUpdate carries the fields editable while an order is pending.
// Items are present only so that attempts to edit them can be rejected.
type OrderUpdate struct {
	DeliveryDate       *time.Time `json:"delivery_date,omitempty"`
	TaxPercentage      *Money     `json:"tax_percentage,omitempty"`
	DiscountPercentage *Money     `json:"discount_percentage,omitempty"`
	Items              []ItemQty  `json:"items,omitempty"`
}

// OrderComplete optionally overrides how a completed order is paid.
type OrderComplete struct {
	PaymentMethod PaymentMethod `json:"payment_method,omitempty" validate:"omitempty,oneof=cash credit_card debit_card bank_transfer"`
}

// RefundCreate is the refund submission.
type RefundCreate struct {
	Items         []ItemQty     `json:"items" validate:"dive"`
	Reason        RefundReason  `json:"reason" validate:"required,oneof=customer_dissatisfaction defective_product wrong_item changed_mind other"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit_card debit_card bank_transfer"`
	Notes         string        `json:"notes,omitempty" validate:"max=500"`
}
