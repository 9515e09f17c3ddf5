package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// ErrSuperseded is returned to a search that was overtaken by a newer query.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Searcher runs type-ahead searches with last-write-wins semantics: starting
// a query cancels the one in flight, and a result that arrives after a newer
// query started is discarded.
type Searcher[T any] struct {
	Fetch func(ctx context.Context, query string) ([]T, error)
	// Delay debounces keystrokes before Fetch is called.
	Delay time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Search runs query and returns its results unless a newer query replaced it.
func (s *Searcher[T]) Search(ctx context.Context, query string) ([]T, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.seq++
	mine := s.seq
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, s.cancelled(ctx, mine)
		case <-timer.C:
		}
	}

	res, err := s.Fetch(ctx, query)
	if s.stale(mine) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Searcher[T]) stale(mine uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mine != s.seq
}

func (s *Searcher[T]) cancelled(ctx context.Context, mine uint64) error {
	if s.stale(mine) {
		return ErrSuperseded
	}
	return ctx.Err()
}

// ProductSearcher searches the catalog through the backend.
func ProductSearcher(b Backend, limit int, delay time.Duration) *Searcher[domain.Product] {
	return &Searcher[domain.Product]{
		Delay: delay,
		Fetch: func(ctx context.Context, q string) ([]domain.Product, error) {
			return b.SearchProducts(ctx, q, limit)
		},
	}
}

// CustomerSearcher searches customers through the backend.
func CustomerSearcher(b Backend, limit int, delay time.Duration) *Searcher[domain.Customer] {
	return &Searcher[domain.Customer]{
		Delay: delay,
		Fetch: func(ctx context.Context, q string) ([]domain.Customer, error) {
			return b.SearchCustomers(ctx, q, limit)
		},
	}
}

// LogAcknowledger records scan feedback in the terminal log, for headless
// terminals without a buzzer.
type LogAcknowledger struct {
	Logger zerolog.Logger
}

// Ack logs an accepted match.
func (a LogAcknowledger) Ack(p domain.Product) {
	a.Logger.Info().Str("product_id", p.ID).Str("name", p.Name).Msg("scan_ack")
}

// Reject logs a code with no catalog match.
func (a LogAcknowledger) Reject(code string) {
	a.Logger.Info().Str("code", code).Msg("scan_no_match")
}
