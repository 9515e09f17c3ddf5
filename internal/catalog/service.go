// Package catalog serves product lookups for the register, caches them in
// Redis and applies manual stock adjustments.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/events"
	"github.com/noah-isme/kasir-api/internal/stock"
	"github.com/noah-isme/kasir-api/internal/store"
)

// ErrZeroAdjustment rejects stock adjustments that change nothing.
var ErrZeroAdjustment = errors.New("stock adjustment delta must not be zero")

type productStore interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	ByBarcode(ctx context.Context, code string) (domain.Product, error)
	List(ctx context.Context, query string, limit, offset int) ([]domain.Product, int, error)
	AdjustStock(ctx context.Context, id string, delta int, reason, referenceID string) (domain.Product, error)
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (domain.Event, error)
}

// Alerter raises low-stock alerts.
type Alerter interface {
	LowStock(ctx context.Context, businessID string, p domain.Product, threshold int) error
}

// SettingsStore reads the business low-stock threshold.
type SettingsStore interface {
	Settings(ctx context.Context) (store.Settings, error)
}

// Service orchestrates catalog queries, caching and stock adjustments.
type Service struct {
	products     productStore
	cache        *ProductCache
	tx           TxRunner
	events       Emitter
	alerts       Alerter
	settings     SettingsStore
	logger       zerolog.Logger
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products     productStore
	Cache        *ProductCache
	Tx           TxRunner
	Events       Emitter
	Alerts       Alerter
	Settings     SettingsStore
	Logger       zerolog.Logger
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query string
	Page  int
	Limit int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []domain.Product
	Total int
	Page  int
	Limit int
}

// Adjustment is a manual stock correction.
type Adjustment struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason" validate:"max=200"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Products == nil {
		return nil, errors.New("catalog: product store is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		products:     cfg.Products,
		cache:        cfg.Cache,
		tx:           cfg.Tx,
		events:       cfg.Events,
		alerts:       cfg.Alerts,
		settings:     cfg.Settings,
		logger:       cfg.Logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into list filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = l
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// List returns products ordered by name, filtered by name, barcode or SKU.
func (s *Service) List(ctx context.Context, params ListParams) (ProductListResult, error) {
	pg := common.NewPageRequest(params.Page, params.Limit, s.maxLimit)
	items, total, err := s.products.List(ctx, params.Query, pg.Limit, pg.Offset)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	if items == nil {
		items = []domain.Product{}
	}
	return ProductListResult{Items: items, Total: total, Page: pg.Page, Limit: pg.Limit}, nil
}

// Product returns a product by id, served from cache when possible.
func (s *Service) Product(ctx context.Context, id string) (domain.Product, error) {
	return s.cache.load(ctx, idKey(ctx, id), func() (domain.Product, error) {
		return s.products.Get(ctx, id)
	})
}

// ByBarcode returns the product carrying code.
func (s *Service) ByBarcode(ctx context.Context, code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, badRequest("code", "barcode is required", nil)
	}
	return s.cache.load(ctx, barcodeKey(ctx, code), func() (domain.Product, error) {
		return s.products.ByBarcode(ctx, code)
	})
}

// LookupByBarcode resolves a scanned code; a missing product is not an error.
func (s *Service) LookupByBarcode(ctx context.Context, code string) (domain.Product, bool, error) {
	return found(s.ByBarcode(ctx, code))
}

// LookupByID resolves a product id; a missing product is not an error.
func (s *Service) LookupByID(ctx context.Context, id string) (domain.Product, bool, error) {
	return found(s.Product(ctx, id))
}

// Adjust applies a manual stock correction, records the movement and drops
// cached copies of the product.
func (s *Service) Adjust(ctx context.Context, id string, adj Adjustment) (domain.Product, error) {
	if adj.Delta == 0 {
		return domain.Product{}, ErrZeroAdjustment
	}
	var (
		p         domain.Product
		threshold = -1
	)
	apply := func(ctx context.Context) error {
		var err error
		p, err = s.products.AdjustStock(ctx, id, adj.Delta, store.MovementAdjustment, "")
		if err != nil {
			return err
		}
		if s.settings != nil {
			settings, err := s.settings.Settings(ctx)
			if err != nil {
				return fmt.Errorf("load business settings: %w", err)
			}
			threshold = settings.LowStockThreshold
		}
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.tx.InTx(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.cache.Forget(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("product_id", p.ID).Msg("catalog_cache_invalidate_failed")
	}
	s.logger.Info().
		Str("product_id", p.ID).
		Int("delta", adj.Delta).
		Int("quantity", p.Quantity).
		Str("reason", adj.Reason).
		Msg("stock_adjusted")
	if s.events != nil {
		payload := map[string]any{"product_id": p.ID, "delta": adj.Delta, "quantity": p.Quantity, "reason": adj.Reason}
		if _, err := s.events.Emit(ctx, events.TopicStockAdjusted, p.ID, payload); err != nil {
			s.logger.Warn().Err(err).Str("product_id", p.ID).Msg("stock_event_failed")
		}
	}
	if s.alerts != nil && adj.Delta < 0 && stock.Low(p.Quantity, threshold) {
		biz, _ := business.From(ctx)
		if err := s.alerts.LowStock(ctx, biz, p, threshold); err != nil {
			s.logger.Warn().Err(err).Str("product_id", p.ID).Msg("stock_low_alert_failed")
		}
	}
	return p, nil
}

func found(p domain.Product, err error) (domain.Product, bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

func badRequest(field, message string, err error) *common.AppError {
	return common.NewAppError(common.CodeBadRequest, message, http.StatusBadRequest, err).
		WithDetails(map[string]any{"field": field})
}
