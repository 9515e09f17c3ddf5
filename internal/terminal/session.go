// Package terminal drives a checkout counter: it owns the cart and scanner
// session locally and submits sales, orders and refunds to the API.
package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/cart"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/refund"
	"github.com/noah-isme/kasir-api/internal/sale"
	"github.com/noah-isme/kasir-api/internal/scan"
)

// Backend is the remote side of the terminal, usually *apiclient.Client.
type Backend interface {
	scan.CatalogProvider
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	CreateSale(ctx context.Context, req domain.SaleCreate) (sale.Receipt, error)
	CreateOrder(ctx context.Context, req domain.OrderCreate) (domain.Order, error)
	Sale(ctx context.Context, id string) (domain.Sale, error)
	Refunds(ctx context.Context, saleID string) ([]domain.Refund, error)
	CreateRefund(ctx context.Context, saleID string, req domain.RefundCreate) (refund.Result, error)
}

// SessionStore persists in-progress carts across terminal restarts.
type SessionStore interface {
	Save(ctx context.Context, terminalID string, c *cart.Cart) error
	Load(ctx context.Context, terminalID string) (*cart.Cart, error)
	Discard(ctx context.Context, terminalID string) error
}

// Acknowledger gives the operator feedback for accepted scans.
type Acknowledger = scan.Acknowledger

// Config configures a Session.
type Config struct {
	TerminalID string
	Backend    Backend
	// Store is optional; without it the cart lives only in memory.
	Store     SessionStore
	Ack       Acknowledger
	Cooldown  time.Duration
	AutoClose bool
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Checkout carries the operator's choices at the payment step.
type Checkout struct {
	TaxPercentage      decimal.Decimal
	DiscountPercentage decimal.Decimal
	PaymentMethod      domain.PaymentMethod
	Tendered           *decimal.Decimal
	Notes              string
}

// OrderDraft carries the choices made when saving the cart as an order.
type OrderDraft struct {
	DeliveryDate       time.Time
	TaxPercentage      decimal.Decimal
	DiscountPercentage decimal.Decimal
}

// Session is one terminal's cart and scanner. Nothing is changed
// optimistically: submitted lines leave the cart only after the backend
// confirms.
type Session struct {
	terminalID string
	backend    Backend
	store      SessionStore
	gate       *scan.Gate
	logger     zerolog.Logger

	mu   sync.Mutex
	cart *cart.Cart
}

// NewSession builds a session with an empty cart.
func NewSession(cfg Config) *Session {
	s := &Session{
		terminalID: cfg.TerminalID,
		backend:    cfg.Backend,
		store:      cfg.Store,
		logger:     cfg.Logger.With().Str("terminal_id", cfg.TerminalID).Logger(),
		cart:       cart.New(),
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = scan.DefaultCooldown
	}
	s.gate = &scan.Gate{
		Cooldown:  cooldown,
		AutoClose: cfg.AutoClose,
		Ack:       cfg.Ack,
		Now:       cfg.Now,
		OnMatch: func(p domain.Product) {
			s.mu.Lock()
			s.cart.AddItem(p)
			s.mu.Unlock()
		},
	}
	return s
}

// Gate exposes the scanner session, e.g. to close or reopen it.
func (s *Session) Gate() *scan.Gate { return s.gate }

// Restore loads the persisted cart, replacing the in-memory one.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	c, err := s.store.Load(ctx, s.terminalID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cart = c
	s.mu.Unlock()
	return nil
}

// Scan passes a decoded barcode through the gate; a match lands in the cart.
func (s *Session) Scan(ctx context.Context, code string) (scan.Result, error) {
	res, err := s.gate.OnScanCatalog(ctx, code, s.backend)
	if err != nil {
		return scan.Result{}, err
	}
	if res.Kind == scan.Matched {
		s.persist(ctx)
	}
	s.logger.Debug().Str("code", code).Str("outcome", res.Outcome).Msg("scan")
	return res, nil
}

// Add looks a product up by id and adds one unit of it.
func (s *Session) Add(ctx context.Context, productID string) (domain.Product, error) {
	p, ok, err := s.backend.LookupByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	s.mu.Lock()
	s.cart.AddItem(p)
	s.mu.Unlock()
	s.persist(ctx)
	return p, nil
}

// AddProduct adds an already resolved product, e.g. a search result.
func (s *Session) AddProduct(ctx context.Context, p domain.Product) {
	s.mu.Lock()
	s.cart.AddItem(p)
	s.mu.Unlock()
	s.persist(ctx)
}

// ChangeQuantity adjusts a line by delta; the line is removed at zero.
func (s *Session) ChangeQuantity(ctx context.Context, productID string, delta int) (int, error) {
	s.mu.Lock()
	q, err := s.cart.ChangeQuantity(productID, delta)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	s.persist(ctx)
	return q, nil
}

// Remove drops a line from the cart.
func (s *Session) Remove(ctx context.Context, productID string) {
	s.mu.Lock()
	s.cart.RemoveItem(productID)
	s.mu.Unlock()
	s.persist(ctx)
}

// SelectCustomer attaches a customer; nil detaches.
func (s *Session) SelectCustomer(ctx context.Context, c *domain.Customer) {
	s.mu.Lock()
	s.cart.SetCustomer(c)
	s.mu.Unlock()
	s.persist(ctx)
}

// Customer returns the selected customer, if any.
func (s *Session) Customer() (domain.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Customer()
}

// Items returns the cart lines in insertion order.
func (s *Session) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Items()
}

// Totals prices the cart.
func (s *Session) Totals(taxPct, discountPct decimal.Decimal) (pricing.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Totals(taxPct, discountPct)
}

// Clear empties the cart and detaches the customer.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cart.Clear()
	s.mu.Unlock()
	s.discard(ctx)
}

// settle removes what the backend accepted. Anything scanned while the
// request was in flight stays in the cart.
func (s *Session) settle(ctx context.Context, submitted []domain.ItemQty) {
	s.mu.Lock()
	s.cart.Subtract(submitted)
	empty := s.cart.IsEmpty()
	s.mu.Unlock()
	if empty {
		s.discard(ctx)
		return
	}
	s.persist(ctx)
}

// Checkout submits the cart as a sale. On any failure the cart is kept.
func (s *Session) Checkout(ctx context.Context, in Checkout) (sale.Receipt, error) {
	s.mu.Lock()
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return sale.Receipt{}, cart.ErrEmptyCart
	}
	totals, err := s.cart.Totals(in.TaxPercentage, in.DiscountPercentage)
	if err != nil {
		s.mu.Unlock()
		return sale.Receipt{}, err
	}
	req := domain.SaleCreate{
		Items:              s.cart.Requested(),
		TaxPercentage:      in.TaxPercentage,
		DiscountPercentage: in.DiscountPercentage,
		PaymentMethod:      in.PaymentMethod,
		Tendered:           in.Tendered,
		Notes:              in.Notes,
	}
	if c, ok := s.cart.Customer(); ok {
		req.CustomerID = c.ID
	}
	s.mu.Unlock()

	// A zero tax is replaced by the business default on the server, so the
	// local tender check only applies when the operator chose a rate.
	if in.Tendered != nil && !in.TaxPercentage.IsZero() {
		if _, err := pricing.Change(totals.Total, *in.Tendered); err != nil {
			return sale.Receipt{}, err
		}
	}

	receipt, err := s.backend.CreateSale(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("checkout_failed")
		return sale.Receipt{}, err
	}
	s.settle(ctx, req.Items)
	s.logger.Info().Str("sale_id", receipt.Sale.ID).Str("total", pricing.Present(receipt.Sale.TotalAmount).StringFixed(2)).Msg("checkout_completed")
	return receipt, nil
}

// SaveOrder submits the cart as a pending order for the selected customer.
func (s *Session) SaveOrder(ctx context.Context, in OrderDraft) (domain.Order, error) {
	s.mu.Lock()
	cust, ok := s.cart.Customer()
	if !ok {
		s.mu.Unlock()
		return domain.Order{}, domain.ErrNoCustomerSelected
	}
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return domain.Order{}, cart.ErrEmptyCart
	}
	if _, err := s.cart.Totals(in.TaxPercentage, in.DiscountPercentage); err != nil {
		s.mu.Unlock()
		return domain.Order{}, err
	}
	req := domain.OrderCreate{
		CustomerID:         cust.ID,
		Items:              s.cart.Requested(),
		DeliveryDate:       in.DeliveryDate,
		TaxPercentage:      in.TaxPercentage,
		DiscountPercentage: in.DiscountPercentage,
	}
	s.mu.Unlock()

	o, err := s.backend.CreateOrder(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("order_save_failed")
		return domain.Order{}, err
	}
	s.settle(ctx, req.Items)
	s.logger.Info().Str("order_id", o.ID).Msg("order_saved")
	return o, nil
}

// RefundAvailability shows what remains refundable on a sale.
func (s *Session) RefundAvailability(ctx context.Context, saleID string) ([]refund.Line, error) {
	sl, prior, err := s.refundContext(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return refund.Availability(sl, prior), nil
}

// PrepareRefund validates and prices a refund against the latest backend data
// without submitting it.
func (s *Session) PrepareRefund(ctx context.Context, saleID string, items []domain.ItemQty) (refund.Draft, error) {
	sl, prior, err := s.refundContext(ctx, saleID)
	if err != nil {
		return refund.Draft{}, err
	}
	return refund.Validate(sl, prior, items)
}

// SubmitRefund checks the refund locally and then issues it. The server
// repeats the check under its own lock.
func (s *Session) SubmitRefund(ctx context.Context, saleID string, req domain.RefundCreate) (refund.Result, error) {
	if _, err := s.PrepareRefund(ctx, saleID, req.Items); err != nil {
		return refund.Result{}, err
	}
	res, err := s.backend.CreateRefund(ctx, saleID, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("sale_id", saleID).Msg("refund_failed")
		return refund.Result{}, err
	}
	s.logger.Info().Str("sale_id", saleID).Str("refund_id", res.Refund.ID).Str("status", string(res.Sale.Status)).Msg("refund_issued")
	return res, nil
}

func (s *Session) refundContext(ctx context.Context, saleID string) (domain.Sale, []domain.Refund, error) {
	sl, err := s.backend.Sale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	prior, err := s.backend.Refunds(ctx, saleID)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	return sl, prior, nil
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := cart.Restore(s.cart.Snapshot())
	s.mu.Unlock()
	if err := s.store.Save(ctx, s.terminalID, snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("cart_session_save_failed")
	}
}

func (s *Session) discard(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Discard(ctx, s.terminalID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("cart_session_discard_failed")
	}
}
