package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/pricing"
)

var (
	// ErrEmptyCart is returned when checking out a cart without lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnknownProduct is returned when a cart operation references a product not in the cart.
	ErrUnknownProduct = errors.New("product not in cart")
)

// Cart is the in-progress collection of line items for one checkout session.
// No two lines share a product id and no line has a quantity below one.
// A Cart is not safe for concurrent use.
type Cart struct {
	order    []string
	lines    map[string]*domain.LineItem
	customer *domain.Customer
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[string]*domain.LineItem)}
}

// AddItem inserts the product with quantity 1 or increments an existing line.
func (c *Cart) AddItem(p domain.Product) {
	c.init()
	if line, ok := c.lines[p.ID]; ok {
		line.Quantity++
		return
	}
	item := domain.LineItemFromProduct(p, 1)
	c.lines[p.ID] = &item
	c.order = append(c.order, p.ID)
}

// ChangeQuantity adds delta to the line quantity, removing the line when it reaches zero.
// It returns the resulting quantity.
func (c *Cart) ChangeQuantity(productID string, delta int) (int, error) {
	c.init()
	line, ok := c.lines[productID]
	if !ok {
		return 0, fmt.Errorf("change quantity %s: %w", productID, ErrUnknownProduct)
	}
	next := line.Quantity + delta
	if next <= 0 {
		c.RemoveItem(productID)
		return 0, nil
	}
	line.Quantity = next
	return next, nil
}

// RemoveItem drops the line unconditionally.
func (c *Cart) RemoveItem(productID string) {
	c.init()
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the cart and detaches the customer.
func (c *Cart) Clear() {
	c.order = nil
	c.lines = make(map[string]*domain.LineItem)
	c.customer = nil
}

// Subtract takes submitted quantities off the cart, dropping lines that reach
// zero. Lines added after the submission survive. The customer is detached
// once the cart is empty.
func (c *Cart) Subtract(items []domain.ItemQty) {
	c.init()
	for _, it := range items {
		line, ok := c.lines[it.ProductID]
		if !ok {
			continue
		}
		if line.Quantity-it.Quantity <= 0 {
			c.RemoveItem(it.ProductID)
			continue
		}
		line.Quantity -= it.Quantity
	}
	if c.IsEmpty() {
		c.customer = nil
	}
}

// SetCustomer attaches (or with nil, detaches) the customer for the session.
func (c *Cart) SetCustomer(cust *domain.Customer) {
	if cust == nil {
		c.customer = nil
		return
	}
	copied := *cust
	c.customer = &copied
}

// Customer returns the attached customer, if any.
func (c *Cart) Customer() (domain.Customer, bool) {
	if c.customer == nil {
		return domain.Customer{}, false
	}
	return *c.customer, true
}

// Quantity returns the quantity for a product, zero when absent.
func (c *Cart) Quantity(productID string) int {
	if line, ok := c.lines[productID]; ok {
		return line.Quantity
	}
	return 0
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.order) }

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.order) == 0 }

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.LineItem {
	out := make([]domain.LineItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// Requested returns the lines as outbound product/quantity pairs.
func (c *Cart) Requested() []domain.ItemQty {
	out := make([]domain.ItemQty, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, domain.ItemQty{ProductID: id, Quantity: c.lines[id].Quantity})
	}
	return out
}

// Totals computes the cart totals for the given rates.
func (c *Cart) Totals(taxPct, discountPct decimal.Decimal) (pricing.Totals, error) {
	return pricing.ComputeTotals(c.Items(), taxPct, discountPct)
}

func (c *Cart) init() {
	if c.lines == nil {
		c.lines = make(map[string]*domain.LineItem)
	}
}
