package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount kept at full precision until presentation.
type Money = decimal.Decimal

// PaymentMethod enumerates the tender types accepted at checkout and for refunds.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether the payment method is known.
func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer:
		return true
	}
	return false
}

// SaleStatus is the lifecycle state of a finalized sale.
type SaleStatus string

const (
	SaleCompleted       SaleStatus = "completed"
	SaleRefunded        SaleStatus = "refunded"
	SalePartialRefunded SaleStatus = "partial_refunded"
	SalePending         SaleStatus = "pending"
	SaleCancelled       SaleStatus = "cancelled"
)

// OrderStatus is the lifecycle state of a customer order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// RefundReason explains why goods were returned.
type RefundReason string

const (
	ReasonCustomerDissatisfaction RefundReason = "customer_dissatisfaction"
	ReasonDefectiveProduct        RefundReason = "defective_product"
	ReasonWrongItem               RefundReason = "wrong_item"
	ReasonChangedMind             RefundReason = "changed_mind"
	ReasonOther                   RefundReason = "other"
)

// Valid reports whether the refund reason is known.
func (r RefundReason) Valid() bool {
	switch r {
	case ReasonCustomerDissatisfaction, ReasonDefectiveProduct, ReasonWrongItem, ReasonChangedMind, ReasonOther:
		return true
	}
	return false
}

// Product is a catalog entry as seen by the checkout engine.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        Money  `json:"price"`
	Quantity     int    `json:"quantity"`
	Barcode      string `json:"barcode,omitempty"`
	SKU          string `json:"sku,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
}

// LineItem is a product, quantity and price snapshot inside a cart, order or sale.
type LineItem struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	UnitPrice    Money  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() Money {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// LineItemFromProduct snapshots the product price into a line item.
func LineItemFromProduct(p Product, qty int) LineItem {
	return LineItem{
		ProductID:    p.ID,
		ProductName:  p.Name,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		UnitPrice:    p.Price,
		Quantity:     qty,
	}
}

// Customer is referenced by id from sales and orders.
type Customer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	Address             string `json:"address,omitempty"`
	DiscountEligibility bool   `json:"discount_eligibility"`
}

// Sale is an immutable completed transaction. Only Status and IsRefunded change after creation.
type Sale struct {
	ID                 string        `json:"id"`
	BusinessID         string        `json:"business_id,omitempty"`
	CustomerID         string        `json:"customer_id,omitempty"`
	OrderID            string        `json:"order_id,omitempty"`
	Items              []LineItem    `json:"items"`
	Subtotal           Money         `json:"subtotal"`
	Tax                Money         `json:"tax"`
	TaxPercentage      Money         `json:"tax_percentage"`
	Discount           Money         `json:"discount"`
	DiscountPercentage Money         `json:"discount_percentage"`
	TotalAmount        Money         `json:"total_amount"`
	PaymentMethod      PaymentMethod `json:"payment_method"`
	Status             SaleStatus    `json:"status"`
	Timestamp          time.Time     `json:"timestamp"`
	IsRefunded         bool          `json:"is_refunded"`
	Notes              string        `json:"notes,omitempty"`
}

// Item returns the sale line for productID.
func (s Sale) Item(productID string) (LineItem, bool) {
	for _, it := range s.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return LineItem{}, false
}

// RefundItem is a returned quantity priced at the original sale's unit price.
type RefundItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unit_price"`
	Subtotal    Money  `json:"subtotal"`
}

// Refund is an append-only record against a sale.
type Refund struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"business_id,omitempty"`
	SaleID        string        `json:"sale_id"`
	Items         []RefundItem  `json:"items"`
	Reason        RefundReason  `json:"reason"`
	Subtotal      Money         `json:"subtotal"`
	TaxRefund     Money         `json:"tax_refund"`
	TotalRefund   Money         `json:"total_refund"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Notes         string        `json:"notes,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	ProcessedBy   string        `json:"processed_by,omitempty"`
}

// Order is a customer-bound intent that becomes a Sale when completed.
type Order struct {
	ID                 string      `json:"id"`
	BusinessID         string      `json:"business_id,omitempty"`
	CustomerID         string      `json:"customer_id"`
	Items              []LineItem  `json:"items"`
	Subtotal           Money       `json:"subtotal"`
	TaxAmount          Money       `json:"tax_amount"`
	TaxPercentage      Money       `json:"tax_percentage"`
	DiscountAmount     Money       `json:"discount_amount"`
	DiscountPercentage Money       `json:"discount_percentage"`
	TotalAmount        Money       `json:"total_amount"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	DeliveryDate       time.Time   `json:"delivery_date"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	SaleID             string      `json:"sale_id,omitempty"`
}

// Event is a persisted domain event.
type Event struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	Topic       string    `json:"topic"`
	AggregateID string    `json:"aggregate_id"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}
