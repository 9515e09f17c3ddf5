// Package stock raises and processes low-stock alerts through asynq.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/obs"
)

// TypeLowStock is the asynq task type for low-stock alerts.
const TypeLowStock = "stock:low"

// DefaultQueue is the asynq queue alerts are published to.
const DefaultQueue = "alerts"

// LowStockPayload describes a product that fell to or below its threshold.
type LowStockPayload struct {
	BusinessID string    `json:"business_id"`
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	Threshold  int       `json:"threshold"`
	RaisedAt   time.Time `json:"raised_at"`
}

// Low reports whether on-hand quantity is at or below threshold.
func Low(quantity, threshold int) bool {
	return threshold >= 0 && quantity <= threshold
}

// NewLowStockTask encodes the payload as an asynq task.
func NewLowStockTask(p LowStockPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode low stock payload: %w", err)
	}
	return asynq.NewTask(TypeLowStock, data), nil
}

// TaskEnqueuer is the subset of *asynq.Client used to publish alerts.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Alerter publishes low-stock alerts. A nil client disables alerting.
type Alerter struct {
	Client TaskEnqueuer
	Queue  string
	// Dedup suppresses repeat alerts for the same product within the window.
	Dedup time.Duration
	Now   func() time.Time
}

// LowStock enqueues an alert for p.
func (a Alerter) LowStock(ctx context.Context, businessID string, p domain.Product, threshold int) error {
	if a.Client == nil {
		return nil
	}
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now()
	}
	task, err := NewLowStockTask(LowStockPayload{
		BusinessID: businessID,
		ProductID:  p.ID,
		Name:       p.Name,
		Quantity:   p.Quantity,
		Threshold:  threshold,
		RaisedAt:   now,
	})
	if err != nil {
		return err
	}
	queue := a.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(3)}
	if a.Dedup > 0 {
		// The payload changes with every sale, so uniqueness is keyed on the
		// product instead. Retention keeps the id taken after processing.
		opts = append(opts, asynq.TaskID(DedupID(businessID, p.ID)), asynq.Retention(a.Dedup))
	}
	_, err = a.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}
	obs.CountStockLow()
	return nil
}

// DedupID names the alert task for one product of one business.
func DedupID(businessID, productID string) string {
	return TypeLowStock + ":" + businessID + ":" + productID
}

// Notifier is told about low stock by the worker.
type Notifier interface {
	NotifyLowStock(ctx context.Context, p LowStockPayload) error
}

// Processor handles stock:low tasks in the worker.
type Processor struct {
	Logger   zerolog.Logger
	Notifier Notifier
}

// ProcessTask implements asynq.Handler.
func (p Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode low stock payload: %w: %w", err, asynq.SkipRetry)
	}
	p.Logger.Warn().
		Str("business_id", payload.BusinessID).
		Str("product_id", payload.ProductID).
		Str("product_name", payload.Name).
		Int("quantity", payload.Quantity).
		Int("threshold", payload.Threshold).
		Msg("stock_low")
	if p.Notifier != nil {
		return p.Notifier.NotifyLowStock(ctx, payload)
	}
	return nil
}

// Mux returns an asynq mux routing stock tasks to the processor.
func Mux(p Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeLowStock, p)
	return mux
}
