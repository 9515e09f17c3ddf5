package refund_test

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

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/lock"
	"github.com/noah-isme/kasir-api/internal/refund"
)

const shop = "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10"

// memStore keeps sales, refunds and stock in memory. InTx snapshots state and
// restores it when fn fails, mimicking a rollback.
type memStore struct {
	mu      sync.Mutex
	sales   map[string]domain.Sale
	refunds map[string][]domain.Refund
	stock   map[string]int
	events  []string
}

func newMemStore(sale domain.Sale) *memStore {
	return &memStore{
		sales:   map[string]domain.Sale{sale.ID: sale},
		refunds: map[string][]domain.Refund{},
		stock:   map[string]int{},
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	sales := make(map[string]domain.Sale, len(m.sales))
	for k, v := range m.sales {
		sales[k] = v
	}
	refunds := make(map[string][]domain.Refund, len(m.refunds))
	for k, v := range m.refunds {
		refunds[k] = append([]domain.Refund(nil), v...)
	}
	stock := make(map[string]int, len(m.stock))
	for k, v := range m.stock {
		stock[k] = v
	}
	m.mu.Unlock()
	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.sales, m.refunds, m.stock = sales, refunds, stock
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id string) (domain.Sale, error) {
	return m.Get(ctx, id)
}

func (m *memStore) UpdateRefundState(_ context.Context, id string, st domain.SaleStatus, refunded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sales[id]
	s.Status = st
	s.IsRefunded = refunded
	m.sales[id] = s
	return nil
}

func (m *memStore) Insert(_ context.Context, rf domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[rf.SaleID] = append([]domain.Refund{rf}, m.refunds[rf.SaleID]...)
	return nil
}

func (m *memStore) ListBySale(_ context.Context, saleID string) ([]domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Refund(nil), m.refunds[saleID]...), nil
}

func (m *memStore) AdjustStock(_ context.Context, id string, delta int, _, _ string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "gone" {
		return domain.Product{}, domain.ErrNotFound
	}
	m.stock[id] += delta
	return domain.Product{ID: id, Quantity: m.stock[id]}, nil
}

func (m *memStore) Emit(_ context.Context, topic, _ string, _ any) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, topic)
	return domain.Event{Topic: topic}, nil
}

func sale(qty int) domain.Sale {
	sub := decimal.NewFromInt(int64(10 * qty))
	return domain.Sale{
		ID:          "sale-1",
		Items:       []domain.LineItem{{ProductID: "A", ProductName: "Alpha", UnitPrice: decimal.NewFromInt(10), Quantity: qty}},
		Subtotal:    sub,
		Tax:         sub.Div(decimal.NewFromInt(10)),
		TotalAmount: sub.Add(sub.Div(decimal.NewFromInt(10))),
		Status:      domain.SaleCompleted,
	}
}

func newService(t *testing.T, store *memStore) *refund.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &refund.Service{
		Tx:      store,
		Sales:   store,
		Refunds: store,
		Stock:   store,
		Events:  store,
		Lock:    lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) },
	}
}

func refundReq(qty int) domain.RefundCreate {
	return domain.RefundCreate{
		Items:         []domain.ItemQty{{ProductID: "A", Quantity: qty}},
		Reason:        domain.ReasonDefectiveProduct,
		PaymentMethod: domain.PaymentCash,
	}
}

func TestIssuePersistsAndRestocks(t *testing.T) {
	store := newMemStore(sale(3))
	svc := newService(t, store)
	ctx := business.With(context.Background(), shop)

	res, err := svc.Issue(ctx, "sale-1", refundReq(1), "cashier-7")
	require.NoError(t, err)
	require.NotEmpty(t, res.Refund.ID)
	require.Equal(t, "cashier-7", res.Refund.ProcessedBy)
	require.True(t, res.Refund.TotalRefund.Equal(decimal.NewFromInt(11)))
	require.Equal(t, domain.SalePartialRefunded, res.Sale.Status)
	require.True(t, res.Sale.IsRefunded)

	stored, _ := store.Get(ctx, "sale-1")
	require.Equal(t, domain.SalePartialRefunded, stored.Status)
	require.Equal(t, 1, store.stock["A"])
	require.Equal(t, []string{"refund.issued"}, store.events)

	lines, err := svc.Availability(ctx, "sale-1")
	require.NoError(t, err)
	require.Equal(t, 2, lines[0].Available)
}

func TestIssueRejectsWithoutSideEffects(t *testing.T) {
	store := newMemStore(sale(2))
	svc := newService(t, store)
	ctx := business.With(context.Background(), shop)

	_, err := svc.Issue(ctx, "sale-1", refundReq(3), "")
	require.True(t, errors.Is(err, refund.ErrExceedsAvailable))
	stored, _ := store.Get(ctx, "sale-1")
	require.Equal(t, domain.SaleCompleted, stored.Status)
	require.False(t, stored.IsRefunded)
	require.Empty(t, store.refunds["sale-1"])
	require.Empty(t, store.events)

	_, err = svc.Issue(ctx, "missing", refundReq(1), "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentIssuesNeverOverRefund(t *testing.T) {
	store := newMemStore(sale(3))
	svc := newService(t, store)
	ctx := business.With(context.Background(), shop)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, exceeded int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, "sale-1", refundReq(1), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, refund.ErrExceedsAvailable):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, ok)
	require.Equal(t, 5, exceeded)
	stored, _ := store.Get(ctx, "sale-1")
	require.Equal(t, domain.SaleRefunded, stored.Status)
	require.Equal(t, 3, refund.RefundedSoFar(store.refunds["sale-1"])["A"])
}

func TestIssueSkipsRestockForDeletedProduct(t *testing.T) {
	s := sale(1)
	s.Items[0].ProductID = "gone"
	store := newMemStore(s)
	svc := newService(t, store)
	ctx := business.With(context.Background(), shop)

	req := refundReq(1)
	req.Items[0].ProductID = "gone"
	res, err := svc.Issue(ctx, "sale-1", req, "")
	require.NoError(t, err)
	require.Equal(t, domain.SaleRefunded, res.Sale.Status)
}
