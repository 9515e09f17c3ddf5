// Package sale implements checkout: pricing a request against locked catalog
// rows, recording the sale and decrementing stock in one transaction.
package sale

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
	"github.com/noah-isme/kasir-api/internal/stock"
	"github.com/noah-isme/kasir-api/internal/store"
)

// ErrInvalidPaymentMethod is returned for tender types the register does not accept.
var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductStore locks catalog rows and moves stock.
type ProductStore interface {
	LockMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int, reason, referenceID string) (domain.Product, error)
}

// SaleStore persists and reads sales.
type SaleStore interface {
	Insert(ctx context.Context, s domain.Sale) error
	Get(ctx context.Context, id string) (domain.Sale, error)
	List(ctx context.Context, f store.SaleFilter, limit, offset int) ([]domain.Sale, int, error)
}

// CustomerStore verifies referenced customers.
type CustomerStore interface {
	Get(ctx context.Context, id string) (domain.Customer, error)
}

// SettingsStore reads the business checkout defaults.
type SettingsStore interface {
	Settings(ctx context.Context) (store.Settings, error)
}

// Alerter raises low-stock alerts.
type Alerter interface {
	LowStock(ctx context.Context, businessID string, p domain.Product, threshold int) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (domain.Event, error)
}

// Draft is a sale about to be booked. Orders build one from their stored terms.
type Draft struct {
	Items              []domain.ItemQty
	TaxPercentage      domain.Money
	DiscountPercentage domain.Money
	PaymentMethod      domain.PaymentMethod
	CustomerID         string
	OrderID            string
	Notes              string
	Tendered           *domain.Money
}

// Booked is a sale recorded inside a transaction, waiting to be announced.
type Booked struct {
	Sale      domain.Sale
	Change    *domain.Money
	LowStock  []domain.Product
	Threshold int
}

// Receipt is what checkout returns to the register.
type Receipt struct {
	Sale     domain.Sale    `json:"sale"`
	Totals   pricing.Totals `json:"totals"`
	Tendered *domain.Money  `json:"tendered,omitempty"`
	Change   *domain.Money  `json:"change,omitempty"`
}

// Service books sales.
type Service struct {
	Tx        TxRunner
	Products  ProductStore
	Sales     SaleStore
	Customers CustomerStore
	Settings  SettingsStore
	// Defaults apply when Settings is nil.
	Defaults store.Settings
	Alerts   Alerter
	Events   Emitter
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create runs checkout for req.
func (s *Service) Create(ctx context.Context, req domain.SaleCreate) (Receipt, error) {
	if s == nil || s.Tx == nil || s.Products == nil || s.Sales == nil {
		return Receipt{}, errors.New("sale service not configured")
	}
	var booked Booked
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		booked, err = s.Book(ctx, Draft{
			Items:              req.Items,
			TaxPercentage:      req.TaxPercentage,
			DiscountPercentage: req.DiscountPercentage,
			PaymentMethod:      req.PaymentMethod,
			CustomerID:         req.CustomerID,
			Notes:              req.Notes,
			Tendered:           req.Tendered,
		})
		return err
	})
	if err != nil {
		obs.CountSale(resultLabel(err))
		s.Logger.Warn().Err(err).Int("lines", len(req.Items)).Msg("sale_rejected")
		return Receipt{}, err
	}
	s.Announce(ctx, booked)
	return Receipt{
		Sale: booked.Sale,
		Totals: pricing.Totals{
			Subtotal: booked.Sale.Subtotal,
			Tax:      booked.Sale.Tax,
			Discount: booked.Sale.Discount,
			Total:    booked.Sale.TotalAmount,
		},
		Tendered: req.Tendered,
		Change:   booked.Change,
	}, nil
}

// Book prices and records d. It must run inside a transaction; callers
// announce the result with Announce once the transaction commits.
func (s *Service) Book(ctx context.Context, d Draft) (Booked, error) {
	if !d.PaymentMethod.Valid() {
		return Booked{}, fmt.Errorf("%q: %w", d.PaymentMethod, ErrInvalidPaymentMethod)
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return Booked{}, fmt.Errorf("load business settings: %w", err)
	}
	taxPct := d.TaxPercentage
	if taxPct.IsZero() {
		taxPct = settings.DefaultTaxRate
	}
	if err := pricing.ValidatePercentage("tax", taxPct); err != nil {
		return Booked{}, err
	}
	if err := pricing.ValidatePercentage("discount", d.DiscountPercentage); err != nil {
		return Booked{}, err
	}
	requested := Merge(d.Items)
	if len(requested) == 0 {
		return Booked{}, cart.ErrEmptyCart
	}
	if d.CustomerID != "" && s.Customers != nil {
		if _, err := s.Customers.Get(ctx, d.CustomerID); err != nil {
			return Booked{}, err
		}
	}

	ids := make([]string, 0, len(requested))
	for _, it := range requested {
		ids = append(ids, it.ProductID)
	}
	locked, err := s.Products.LockMany(ctx, ids)
	if err != nil {
		return Booked{}, err
	}
	lines := make([]domain.LineItem, 0, len(requested))
	for _, it := range requested {
		p, ok := locked[it.ProductID]
		if !ok {
			return Booked{}, fmt.Errorf("product %s: %w", it.ProductID, domain.ErrNotFound)
		}
		if p.Quantity < it.Quantity {
			return Booked{}, fmt.Errorf("product %s: requested %d, on hand %d: %w", p.ID, it.Quantity, p.Quantity, domain.ErrInsufficientStock)
		}
		lines = append(lines, domain.LineItemFromProduct(p, it.Quantity))
	}

	totals, err := pricing.ComputeTotals(lines, taxPct, d.DiscountPercentage)
	if err != nil {
		return Booked{}, err
	}
	var change *domain.Money
	if d.Tendered != nil {
		c, err := pricing.Change(totals.Total, *d.Tendered)
		if err != nil {
			return Booked{}, err
		}
		change = &c
	}

	biz, _ := business.From(ctx)
	sale := domain.Sale{
		ID:                 uuid.NewString(),
		BusinessID:         biz,
		CustomerID:         d.CustomerID,
		OrderID:            d.OrderID,
		Items:              lines,
		Subtotal:           totals.Subtotal,
		Tax:                totals.Tax,
		TaxPercentage:      taxPct,
		Discount:           totals.Discount,
		DiscountPercentage: d.DiscountPercentage,
		TotalAmount:        totals.Total,
		PaymentMethod:      d.PaymentMethod,
		Status:             domain.SaleCompleted,
		Timestamp:          s.now(),
		Notes:              d.Notes,
	}
	if err := s.Sales.Insert(ctx, sale); err != nil {
		return Booked{}, fmt.Errorf("insert sale: %w", err)
	}

	reason := store.MovementSale
	if d.OrderID != "" {
		reason = store.MovementOrder
	}
	booked := Booked{Sale: sale, Change: change, Threshold: settings.LowStockThreshold}
	for _, li := range lines {
		after, err := s.Products.AdjustStock(ctx, li.ProductID, -li.Quantity, reason, sale.ID)
		if err != nil {
			return Booked{}, fmt.Errorf("decrement stock %s: %w", li.ProductID, err)
		}
		if stock.Low(after.Quantity, settings.LowStockThreshold) {
			booked.LowStock = append(booked.LowStock, after)
		}
	}
	return booked, nil
}

// Announce records metrics, logs, emits sale.created and raises low-stock
// alerts for a committed sale. Failures here never undo the sale.
func (s *Service) Announce(ctx context.Context, b Booked) {
	sale := b.Sale
	total := pricing.Present(sale.TotalAmount)
	obs.CountSale("completed")
	amount, _ := total.Float64()
	obs.AddSaleAmount(string(sale.PaymentMethod), amount)
	s.Logger.Info().
		Str("sale_id", sale.ID).
		Str("order_id", sale.OrderID).
		Str("total", total.StringFixed(2)).
		Str("payment_method", string(sale.PaymentMethod)).
		Int("lines", len(sale.Items)).
		Msg("sale_created")

	if s.Events != nil {
		payload := map[string]any{
			"sale_id":        sale.ID,
			"order_id":       sale.OrderID,
			"customer_id":    sale.CustomerID,
			"total":          total.StringFixed(2),
			"payment_method": sale.PaymentMethod,
		}
		if _, err := s.Events.Emit(ctx, events.TopicSaleCreated, sale.ID, payload); err != nil {
			s.Logger.Warn().Err(err).Str("sale_id", sale.ID).Msg("sale_event_failed")
		}
	}
	if s.Alerts == nil {
		return
	}
	biz, _ := business.From(ctx)
	for _, p := range b.LowStock {
		if err := s.Alerts.LowStock(ctx, biz, p, b.Threshold); err != nil {
			s.Logger.Warn().Err(err).Str("product_id", p.ID).Msg("stock_low_alert_failed")
		}
	}
}

// Get returns a sale by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Sale, error) {
	if s == nil || s.Sales == nil {
		return domain.Sale{}, errors.New("sale service not configured")
	}
	return s.Sales.Get(ctx, id)
}

// List returns sales matching f, newest first.
func (s *Service) List(ctx context.Context, f store.SaleFilter, limit, offset int) ([]domain.Sale, int, error) {
	if s == nil || s.Sales == nil {
		return nil, 0, errors.New("sale service not configured")
	}
	return s.Sales.List(ctx, f, limit, offset)
}

func (s *Service) settings(ctx context.Context) (store.Settings, error) {
	if s.Settings == nil {
		return s.Defaults, nil
	}
	return s.Settings.Settings(ctx)
}

// Merge sums duplicate product lines in request order and drops lines with a
// non-positive quantity.
func Merge(items []domain.ItemQty) []domain.ItemQty {
	out := make([]domain.ItemQty, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.ProductID == "" {
			continue
		}
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		return "empty"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, pricing.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, pricing.ErrInvalidPercentage):
		return "invalid_percentage"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
