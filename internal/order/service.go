// Package order manages customer orders: pending intents that are either
// cancelled or completed into a sale.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/cart"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/events"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/sale"
	"github.com/noah-isme/kasir-api/internal/status"
	"github.com/noah-isme/kasir-api/internal/store"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStore persists orders.
type OrderStore interface {
	Insert(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetForUpdate(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, st domain.OrderStatus, limit, offset int) ([]domain.Order, int, error)
	UpdateTerms(ctx context.Context, o domain.Order) error
	SetStatus(ctx context.Context, id string, st domain.OrderStatus, completedAt *time.Time, saleID string) error
}

// Catalog prices order lines.
type Catalog interface {
	Get(ctx context.Context, id string) (domain.Product, error)
}

// CustomerStore verifies the order customer.
type CustomerStore interface {
	Get(ctx context.Context, id string) (domain.Customer, error)
}

// SettingsStore reads the business checkout defaults.
type SettingsStore interface {
	Settings(ctx context.Context) (store.Settings, error)
}

// Booker records the sale an order completes into.
type Booker interface {
	Book(ctx context.Context, d sale.Draft) (sale.Booked, error)
	Announce(ctx context.Context, b sale.Booked)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (domain.Event, error)
}

// Completion is a completed order and the sale it produced.
type Completion struct {
	Order domain.Order `json:"order"`
	Sale  domain.Sale  `json:"sale"`
}

// Service implements the order lifecycle.
type Service struct {
	Tx        TxRunner
	Orders    OrderStore
	Catalog   Catalog
	Customers CustomerStore
	Settings  SettingsStore
	Defaults  store.Settings
	Sales     Booker
	Events    Emitter
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Tx == nil || s.Orders == nil {
		return errors.New("order service not configured")
	}
	return nil
}

// Create validates and stores a pending order. Prices are snapshotted from the
// catalog; stock is checked but only moves when the order completes.
func (s *Service) Create(ctx context.Context, req domain.OrderCreate) (domain.Order, error) {
	if err := s.ready(); err != nil {
		return domain.Order{}, err
	}
	if req.CustomerID == "" {
		return domain.Order{}, domain.ErrNoCustomerSelected
	}
	if s.Customers != nil {
		if _, err := s.Customers.Get(ctx, req.CustomerID); err != nil {
			return domain.Order{}, err
		}
	}
	taxPct, err := s.taxRate(ctx, req.TaxPercentage)
	if err != nil {
		return domain.Order{}, err
	}
	requested := sale.Merge(req.Items)
	if len(requested) == 0 {
		return domain.Order{}, cart.ErrEmptyCart
	}
	lines := make([]domain.LineItem, 0, len(requested))
	for _, it := range requested {
		p, err := s.Catalog.Get(ctx, it.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if p.Quantity < it.Quantity {
			return domain.Order{}, fmt.Errorf("product %s: requested %d, on hand %d: %w", p.ID, it.Quantity, p.Quantity, domain.ErrInsufficientStock)
		}
		lines = append(lines, domain.LineItemFromProduct(p, it.Quantity))
	}
	totals, err := pricing.ComputeTotals(lines, taxPct, req.DiscountPercentage)
	if err != nil {
		return domain.Order{}, err
	}

	biz, _ := business.From(ctx)
	o := domain.Order{
		ID:                 uuid.NewString(),
		BusinessID:         biz,
		CustomerID:         req.CustomerID,
		Items:              lines,
		Status:             domain.OrderPending,
		CreatedAt:          s.now(),
		DeliveryDate:       req.DeliveryDate.UTC(),
		TaxPercentage:      taxPct,
		DiscountPercentage: req.DiscountPercentage,
	}
	applyTotals(&o, totals)
	if err := s.Orders.Insert(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	s.announce(ctx, events.TopicOrderCreated, "created", o)
	return o, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := s.ready(); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(ctx, id)
}

// List returns orders, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, st domain.OrderStatus, limit, offset int) ([]domain.Order, int, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	return s.Orders.List(ctx, st, limit, offset)
}

// Update edits delivery date and rates of a pending order and recomputes its amounts.
func (s *Service) Update(ctx context.Context, id string, req domain.OrderUpdate) (domain.Order, error) {
	if err := s.ready(); err != nil {
		return domain.Order{}, err
	}
	var o domain.Order
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := status.CheckOrderEdit(o.Status, len(req.Items) > 0); err != nil {
			return err
		}
		if req.DeliveryDate != nil {
			o.DeliveryDate = req.DeliveryDate.UTC()
		}
		if req.TaxPercentage != nil {
			if o.TaxPercentage, err = s.taxRate(ctx, *req.TaxPercentage); err != nil {
				return err
			}
		}
		if req.DiscountPercentage != nil {
			o.DiscountPercentage = *req.DiscountPercentage
		}
		totals, err := pricing.ComputeTotals(o.Items, o.TaxPercentage, o.DiscountPercentage)
		if err != nil {
			return err
		}
		applyTotals(&o, totals)
		return s.Orders.UpdateTerms(ctx, o)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.announce(ctx, events.TopicOrderUpdated, "updated", o)
	return o, nil
}

// Complete converts a pending order into a sale. The sale uses the order's
// rates, its customer and payment method cash unless req overrides it.
func (s *Service) Complete(ctx context.Context, id string, req domain.OrderComplete) (Completion, error) {
	if err := s.ready(); err != nil {
		return Completion{}, err
	}
	if s.Sales == nil {
		return Completion{}, errors.New("order service: sale booking not configured")
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	var (
		o      domain.Order
		booked sale.Booked
	)
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := status.OrderTransition(o.Status, domain.OrderCompleted); err != nil {
			return err
		}
		booked, err = s.Sales.Book(ctx, sale.Draft{
			Items:              quantities(o.Items),
			TaxPercentage:      rate(o.TaxPercentage, o.TaxAmount, o.Subtotal),
			DiscountPercentage: rate(o.DiscountPercentage, o.DiscountAmount, o.Subtotal),
			PaymentMethod:      method,
			CustomerID:         o.CustomerID,
			OrderID:            o.ID,
			Notes:              "Order #" + o.ID + " completion",
		})
		if err != nil {
			return err
		}
		done := s.now()
		if err := s.Orders.SetStatus(ctx, o.ID, domain.OrderCompleted, &done, booked.Sale.ID); err != nil {
			return err
		}
		o.Status = domain.OrderCompleted
		o.CompletedAt = &done
		o.SaleID = booked.Sale.ID
		return nil
	})
	if err != nil {
		s.Logger.Warn().Err(err).Str("order_id", id).Msg("order_complete_rejected")
		return Completion{}, err
	}
	s.Sales.Announce(ctx, booked)
	s.announce(ctx, events.TopicOrderCompleted, "completed", o)
	return Completion{Order: o, Sale: booked.Sale}, nil
}

// Cancel moves a pending order to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Order, error) {
	if err := s.ready(); err != nil {
		return domain.Order{}, err
	}
	var o domain.Order
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := status.OrderTransition(o.Status, domain.OrderCancelled); err != nil {
			return err
		}
		at := s.now()
		if err := s.Orders.SetStatus(ctx, o.ID, domain.OrderCancelled, &at, ""); err != nil {
			return err
		}
		o.Status = domain.OrderCancelled
		o.CompletedAt = &at
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.announce(ctx, events.TopicOrderCancelled, "cancelled", o)
	return o, nil
}

func (s *Service) taxRate(ctx context.Context, requested domain.Money) (domain.Money, error) {
	pct := requested
	if pct.IsZero() {
		settings := s.Defaults
		if s.Settings != nil {
			var err error
			if settings, err = s.Settings.Settings(ctx); err != nil {
				return domain.Money{}, fmt.Errorf("load business settings: %w", err)
			}
		}
		pct = settings.DefaultTaxRate
	}
	if err := pricing.ValidatePercentage("tax", pct); err != nil {
		return domain.Money{}, err
	}
	return pct, nil
}

func (s *Service) announce(ctx context.Context, topic, transition string, o domain.Order) {
	obs.CountOrder(transition)
	s.Logger.Info().
		Str("order_id", o.ID).
		Str("customer_id", o.CustomerID).
		Str("status", string(o.Status)).
		Str("total", pricing.Present(o.TotalAmount).StringFixed(2)).
		Msg("order_" + transition)
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"order_id":    o.ID,
		"customer_id": o.CustomerID,
		"status":      o.Status,
		"total":       pricing.Present(o.TotalAmount).StringFixed(2),
	}
	if o.SaleID != "" {
		payload["sale_id"] = o.SaleID
	}
	if _, err := s.Events.Emit(ctx, topic, o.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", o.ID).Msg("order_event_failed")
	}
}

func applyTotals(o *domain.Order, t pricing.Totals) {
	o.Subtotal = t.Subtotal
	o.TaxAmount = t.Tax
	o.DiscountAmount = t.Discount
	o.TotalAmount = t.Total
}

func quantities(items []domain.LineItem) []domain.ItemQty {
	out := make([]domain.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, domain.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// rate prefers the stored percentage and falls back to deriving it from the
// stored amounts for rows written without one.
func rate(pct, amount, subtotal domain.Money) domain.Money {
	if !pct.IsZero() || amount.IsZero() {
		return pct
	}
	return pricing.RatePercent(amount, subtotal)
}
