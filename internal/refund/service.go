package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/events"
	"github.com/noah-isme/kasir-api/internal/lock"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/pricing"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SaleStore is the sale persistence used by refunds.
type SaleStore interface {
	Get(ctx context.Context, id string) (domain.Sale, error)
	GetForUpdate(ctx context.Context, id string) (domain.Sale, error)
	UpdateRefundState(ctx context.Context, id string, status domain.SaleStatus, isRefunded bool) error
}

// RefundStore appends and lists refunds.
type RefundStore interface {
	Insert(ctx context.Context, rf domain.Refund) error
	ListBySale(ctx context.Context, saleID string) ([]domain.Refund, error)
}

// StockStore returns refunded goods to inventory.
type StockStore interface {
	AdjustStock(ctx context.Context, productID string, delta int, reason, referenceID string) (domain.Product, error)
}

// Locker serialises refunds per sale across API instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (time.Duration, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (domain.Event, error)
}

// Result is a persisted refund together with the updated sale.
type Result struct {
	Refund domain.Refund `json:"refund"`
	Sale   domain.Sale   `json:"sale"`
}

// Service issues refunds. The availability check, insert and status update
// run in one transaction holding the sale row lock; the Redis lock keeps
// concurrent submissions for the same sale from queueing on the database.
type Service struct {
	Tx      TxRunner
	Sales   SaleStore
	Refunds RefundStore
	Stock   StockStore
	Lock    Locker
	LockTTL time.Duration
	Events  Emitter
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Issue validates and records a refund against saleID.
func (s *Service) Issue(ctx context.Context, saleID string, req domain.RefundCreate, processedBy string) (Result, error) {
	if s == nil || s.Tx == nil || s.Sales == nil || s.Refunds == nil {
		return Result{}, errors.New("refund service not configured")
	}
	var res Result
	run := func(ctx context.Context) error {
		return s.Tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			res, err = s.issue(ctx, saleID, req, processedBy)
			return err
		})
	}

	var err error
	if s.Lock != nil {
		biz, _ := business.From(ctx)
		var waited time.Duration
		waited, err = s.Lock.WithLock(ctx, lock.SaleKey(biz, saleID), s.lockTTL(), run)
		obs.ObserveRefundLockWait(obs.DurationMillis(waited))
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.CountRefund(resultLabel(err))
		s.Logger.Warn().Err(err).Str("sale_id", saleID).Msg("refund_rejected")
		return Result{}, err
	}

	obs.CountRefund("issued")
	s.Logger.Info().
		Str("sale_id", saleID).
		Str("refund_id", res.Refund.ID).
		Str("total_refund", pricing.Present(res.Refund.TotalRefund).StringFixed(2)).
		Str("sale_status", string(res.Sale.Status)).
		Msg("refund_issued")
	if s.Events != nil {
		payload := map[string]any{
			"sale_id":      saleID,
			"total_refund": pricing.Present(res.Refund.TotalRefund).StringFixed(2),
			"sale_status":  res.Sale.Status,
		}
		if _, emitErr := s.Events.Emit(ctx, events.TopicRefundIssued, res.Refund.ID, payload); emitErr != nil {
			s.Logger.Warn().Err(emitErr).Str("refund_id", res.Refund.ID).Msg("refund_event_failed")
		}
	}
	return res, nil
}

func (s *Service) issue(ctx context.Context, saleID string, req domain.RefundCreate, processedBy string) (Result, error) {
	sale, err := s.Sales.GetForUpdate(ctx, saleID)
	if err != nil {
		return Result{}, err
	}
	prior, err := s.Refunds.ListBySale(ctx, saleID)
	if err != nil {
		return Result{}, fmt.Errorf("load prior refunds: %w", err)
	}
	draft, err := Validate(sale, prior, req.Items)
	if err != nil {
		return Result{}, err
	}

	rf := draft.Record(sale, req)
	rf.ID = uuid.NewString()
	rf.Timestamp = s.now()
	rf.ProcessedBy = processedBy
	if err := s.Refunds.Insert(ctx, rf); err != nil {
		return Result{}, fmt.Errorf("insert refund: %w", err)
	}
	updated := draft.Apply(sale)
	if err := s.Sales.UpdateRefundState(ctx, sale.ID, updated.Status, updated.IsRefunded); err != nil {
		return Result{}, fmt.Errorf("update sale status: %w", err)
	}
	if s.Stock != nil {
		for _, it := range rf.Items {
			if _, err := s.Stock.AdjustStock(ctx, it.ProductID, it.Quantity, "refund", rf.ID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					s.Logger.Warn().Str("product_id", it.ProductID).Msg("refund_restock_skipped")
					continue
				}
				return Result{}, fmt.Errorf("restock %s: %w", it.ProductID, err)
			}
		}
	}
	return Result{Refund: rf, Sale: updated}, nil
}

// History returns the sale and its refunds, newest first.
func (s *Service) History(ctx context.Context, saleID string) (domain.Sale, []domain.Refund, error) {
	if s == nil || s.Sales == nil || s.Refunds == nil {
		return domain.Sale{}, nil, errors.New("refund service not configured")
	}
	sale, err := s.Sales.Get(ctx, saleID)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	prior, err := s.Refunds.ListBySale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	return sale, prior, nil
}

// Availability returns per-line refundable quantities for a sale.
func (s *Service) Availability(ctx context.Context, saleID string) ([]Line, error) {
	sale, prior, err := s.History(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return Availability(sale, prior), nil
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrExceedsAvailable):
		return "exceeds_available"
	case errors.Is(err, ErrUnknownProduct):
		return "unknown_product"
	case errors.Is(err, ErrEmptyRefund):
		return "empty"
	case errors.Is(err, lock.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
