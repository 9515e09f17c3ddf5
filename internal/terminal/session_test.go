package terminal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/apiclient"
	"github.com/noah-isme/kasir-api/internal/cart"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/refund"
	"github.com/noah-isme/kasir-api/internal/sale"
	"github.com/noah-isme/kasir-api/internal/terminal"
)

type fakeBackend struct {
	mu       sync.Mutex
	products []domain.Product
	sales    map[string]domain.Sale
	refunds  map[string][]domain.Refund
	failNext error
	sent     []domain.SaleCreate
	orders   []domain.OrderCreate
	issued   []domain.RefundCreate
	// inFlight runs while a sale or order request is being handled.
	inFlight func()
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		products: []domain.Product{
			{ID: "A", Name: "Alpha", Price: decimal.NewFromInt(10), Barcode: "111", Quantity: 50},
			{ID: "B", Name: "Beta", Price: decimal.NewFromInt(5), Barcode: "222", Quantity: 5},
		},
		sales:   map[string]domain.Sale{},
		refunds: map[string][]domain.Refund{},
	}
}

func (b *fakeBackend) LookupByBarcode(_ context.Context, code string) (domain.Product, bool, error) {
	for _, p := range b.products {
		if p.Barcode == code {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (b *fakeBackend) LookupByID(_ context.Context, id string) (domain.Product, bool, error) {
	for _, p := range b.products {
		if p.ID == id {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (b *fakeBackend) SearchProducts(context.Context, string, int) ([]domain.Product, error) {
	return b.products, nil
}

func (b *fakeBackend) SearchCustomers(context.Context, string, int) ([]domain.Customer, error) {
	return nil, nil
}

func (b *fakeBackend) takeFailure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.failNext
	b.failNext = nil
	return err
}

func (b *fakeBackend) CreateSale(_ context.Context, req domain.SaleCreate) (sale.Receipt, error) {
	if err := b.takeFailure(); err != nil {
		return sale.Receipt{}, err
	}
	if b.inFlight != nil {
		b.inFlight()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, req)
	var items []domain.LineItem
	for _, it := range req.Items {
		p, _, _ := b.LookupByID(context.Background(), it.ProductID)
		items = append(items, domain.LineItemFromProduct(p, it.Quantity))
	}
	totals, err := pricing.ComputeTotals(items, req.TaxPercentage, req.DiscountPercentage)
	if err != nil {
		return sale.Receipt{}, err
	}
	s := domain.Sale{ID: "sale-1", Items: items, Subtotal: totals.Subtotal, Tax: totals.Tax, Discount: totals.Discount, TotalAmount: totals.Total, Status: domain.SaleCompleted}
	b.sales[s.ID] = s
	return sale.Receipt{Sale: s, Totals: totals}, nil
}

func (b *fakeBackend) CreateOrder(_ context.Context, req domain.OrderCreate) (domain.Order, error) {
	if err := b.takeFailure(); err != nil {
		return domain.Order{}, err
	}
	if b.inFlight != nil {
		b.inFlight()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, req)
	return domain.Order{ID: "order-1", CustomerID: req.CustomerID, Status: domain.OrderPending}, nil
}

func (b *fakeBackend) Sale(_ context.Context, id string) (domain.Sale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return s, nil
}

func (b *fakeBackend) Refunds(_ context.Context, saleID string) ([]domain.Refund, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refunds[saleID], nil
}

func (b *fakeBackend) CreateRefund(_ context.Context, saleID string, req domain.RefundCreate) (refund.Result, error) {
	if err := b.takeFailure(); err != nil {
		return refund.Result{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sales[saleID]
	draft, err := refund.Validate(s, b.refunds[saleID], req.Items)
	if err != nil {
		return refund.Result{}, err
	}
	rf := draft.Record(s, req)
	rf.ID = "refund-1"
	b.refunds[saleID] = append([]domain.Refund{rf}, b.refunds[saleID]...)
	s = draft.Apply(s)
	b.sales[saleID] = s
	b.issued = append(b.issued, req)
	return refund.Result{Refund: rf, Sale: s}, nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	acks    []string
	rejects []string
}

func (r *recorder) Ack(p domain.Product) { r.acks = append(r.acks, p.ID) }
func (r *recorder) Reject(code string)   { r.rejects = append(r.rejects, code) }

func newSession(t *testing.T, b *fakeBackend) (*terminal.Session, *clock, *recorder, cart.SessionStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cart.SessionStore{R: client, BusinessID: "shop-1", TTL: time.Hour}

	clk := &clock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	ack := &recorder{}
	s := terminal.NewSession(terminal.Config{
		TerminalID: "till-1",
		Backend:    b,
		Store:      store,
		Ack:        ack,
		Now:        clk.Now,
		Logger:     zerolog.Nop(),
	})
	return s, clk, ack, store
}

func cash(amount int64) *decimal.Decimal {
	d := decimal.NewFromInt(amount)
	return &d
}

func TestScanFillsCartAndDebounces(t *testing.T) {
	b := newBackend()
	s, clk, ack, _ := newSession(t, b)
	ctx := context.Background()

	res, err := s.Scan(ctx, "111")
	require.NoError(t, err)
	require.Equal(t, "matched", res.Outcome)

	clk.Advance(500 * time.Millisecond)
	res, err = s.Scan(ctx, "111")
	require.NoError(t, err)
	require.Equal(t, "suppressed", res.Outcome)

	clk.Advance(2 * time.Second)
	_, err = s.Scan(ctx, "111")
	require.NoError(t, err)

	res, err = s.Scan(ctx, "999")
	require.NoError(t, err)
	require.Equal(t, "no_match", res.Outcome)

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)
	require.Equal(t, []string{"A", "A"}, ack.acks)
	require.Equal(t, []string{"999"}, ack.rejects)
}

func TestCheckoutWorkedExample(t *testing.T) {
	b := newBackend()
	s, _, _, store := newSession(t, b)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Add(ctx, "A")
		require.NoError(t, err)
	}
	_, err := s.Add(ctx, "B")
	require.NoError(t, err)
	_, err = s.ChangeQuantity(ctx, "B", 1)
	require.NoError(t, err)

	receipt, err := s.Checkout(ctx, terminal.Checkout{
		TaxPercentage:      decimal.NewFromInt(10),
		DiscountPercentage: decimal.NewFromInt(5),
		PaymentMethod:      domain.PaymentCash,
		Tendered:           cash(40),
	})
	require.NoError(t, err)
	require.Equal(t, "31.50", pricing.Present(receipt.Sale.TotalAmount).StringFixed(2))
	require.Empty(t, s.Items())

	restored, err := store.Load(ctx, "till-1")
	require.NoError(t, err)
	require.True(t, restored.IsEmpty())
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	b := newBackend()
	s, _, _, store := newSession(t, b)
	ctx := context.Background()

	_, err := s.Checkout(ctx, terminal.Checkout{PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, cart.ErrEmptyCart)

	_, err = s.Add(ctx, "A")
	require.NoError(t, err)

	_, err = s.Checkout(ctx, terminal.Checkout{TaxPercentage: decimal.NewFromInt(101), PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, pricing.ErrInvalidPercentage)

	_, err = s.Checkout(ctx, terminal.Checkout{TaxPercentage: decimal.NewFromInt(10), PaymentMethod: domain.PaymentCash, Tendered: cash(5)})
	require.ErrorIs(t, err, pricing.ErrInsufficientPayment)

	b.failNext = &apiclient.RequestFailedError{Method: "POST", Path: "/sales", Status: 503}
	_, err = s.Checkout(ctx, terminal.Checkout{PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, apiclient.ErrRequestFailed)
	require.Len(t, s.Items(), 1)
	require.Empty(t, b.sent)

	restarted := terminal.NewSession(terminal.Config{TerminalID: "till-1", Backend: b, Store: store, Logger: zerolog.Nop()})
	require.NoError(t, restarted.Restore(ctx))
	require.Len(t, restarted.Items(), 1)
}

func TestCheckoutKeepsItemsScannedDuringRequest(t *testing.T) {
	b := newBackend()
	s, _, _, store := newSession(t, b)
	ctx := context.Background()
	_, err := s.Add(ctx, "A")
	require.NoError(t, err)
	_, err = s.ChangeQuantity(ctx, "A", 1)
	require.NoError(t, err)

	b.inFlight = func() {
		_, err := s.Scan(ctx, "222")
		require.NoError(t, err)
		_, err = s.ChangeQuantity(ctx, "A", 1)
		require.NoError(t, err)
	}
	_, err = s.Checkout(ctx, terminal.Checkout{TaxPercentage: decimal.NewFromInt(10), PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)
	require.Equal(t, []domain.ItemQty{{ProductID: "A", Quantity: 2}}, b.sent[0].Items)

	items := s.Items()
	require.Len(t, items, 2)
	require.Equal(t, "A", items[0].ProductID)
	require.Equal(t, 1, items[0].Quantity)
	require.Equal(t, "B", items[1].ProductID)
	require.Equal(t, 1, items[1].Quantity)

	restored, err := store.Load(ctx, "till-1")
	require.NoError(t, err)
	require.Equal(t, 1, restored.Quantity("A"))
	require.Equal(t, 1, restored.Quantity("B"))
}

func TestSaveOrderKeepsCustomerWhileLinesRemain(t *testing.T) {
	b := newBackend()
	s, _, _, _ := newSession(t, b)
	ctx := context.Background()
	_, err := s.Add(ctx, "A")
	require.NoError(t, err)
	s.SelectCustomer(ctx, &domain.Customer{ID: "cust-1", Name: "Ani"})

	b.inFlight = func() {
		_, err := s.Add(ctx, "B")
		require.NoError(t, err)
	}
	_, err = s.SaveOrder(ctx, terminal.OrderDraft{DeliveryDate: time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, []domain.ItemQty{{ProductID: "A", Quantity: 1}}, b.orders[0].Items)

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, "B", items[0].ProductID)
	_, ok := s.Customer()
	require.True(t, ok)
}

func TestSaveOrderRequiresCustomer(t *testing.T) {
	b := newBackend()
	s, _, _, _ := newSession(t, b)
	ctx := context.Background()
	_, err := s.Add(ctx, "A")
	require.NoError(t, err)

	draft := terminal.OrderDraft{DeliveryDate: time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)}
	_, err = s.SaveOrder(ctx, draft)
	require.ErrorIs(t, err, domain.ErrNoCustomerSelected)
	require.Empty(t, b.orders)

	s.SelectCustomer(ctx, &domain.Customer{ID: "cust-1", Name: "Ani"})
	o, err := s.SaveOrder(ctx, draft)
	require.NoError(t, err)
	require.Equal(t, "order-1", o.ID)
	require.Equal(t, "cust-1", b.orders[0].CustomerID)
	require.Empty(t, s.Items())
}

func TestRefundFlow(t *testing.T) {
	b := newBackend()
	s, _, _, _ := newSession(t, b)
	ctx := context.Background()
	_, err := s.Add(ctx, "A")
	require.NoError(t, err)
	_, err = s.ChangeQuantity(ctx, "A", 2)
	require.NoError(t, err)
	receipt, err := s.Checkout(ctx, terminal.Checkout{TaxPercentage: decimal.NewFromInt(10), PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)
	saleID := receipt.Sale.ID

	draft, err := s.PrepareRefund(ctx, saleID, []domain.ItemQty{{ProductID: "A", Quantity: 1}})
	require.NoError(t, err)
	require.Equal(t, "11.00", pricing.Present(draft.TotalRefund).StringFixed(2))
	require.Equal(t, domain.SalePartialRefunded, draft.NextStatus)

	_, err = s.PrepareRefund(ctx, saleID, []domain.ItemQty{{ProductID: "A", Quantity: 4}})
	require.True(t, errors.Is(err, refund.ErrExceedsAvailable))

	req := domain.RefundCreate{Items: []domain.ItemQty{{ProductID: "A", Quantity: 1}}, Reason: domain.ReasonWrongItem, PaymentMethod: domain.PaymentCash}
	res, err := s.SubmitRefund(ctx, saleID, req)
	require.NoError(t, err)
	require.Equal(t, domain.SalePartialRefunded, res.Sale.Status)

	lines, err := s.RefundAvailability(ctx, saleID)
	require.NoError(t, err)
	require.Equal(t, 2, lines[0].Available)

	_, err = s.SubmitRefund(ctx, saleID, domain.RefundCreate{Items: []domain.ItemQty{{ProductID: "Z", Quantity: 1}}, Reason: domain.ReasonOther, PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, refund.ErrUnknownProduct)
	require.Len(t, b.issued, 1)
}
