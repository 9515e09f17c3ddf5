package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
)

const defaultCacheTTL = 30 * time.Second

// ProductCache keeps recently looked-up products in Redis under business
// scoped keys, by id and by barcode. Stock figures in a cached copy may lag
// a sale by up to the TTL; sales and refunds always read the row under lock.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache returns a cache. A nil client disables caching.
func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ProductCache{client: client, ttl: ttl}
}

func (c *ProductCache) enabled() bool { return c != nil && c.client != nil }

// load serves key from Redis, falling back to fetch and storing its result.
// Redis failures degrade to a direct fetch.
func (c *ProductCache) load(ctx context.Context, key string, fetch func() (domain.Product, error)) (domain.Product, error) {
	if !c.enabled() {
		return fetch()
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p domain.Product
		if json.Unmarshal(raw, &p) == nil {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		zerolog.Ctx(ctx).Debug().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}

	p, err := fetch()
	if err != nil {
		return domain.Product{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return p, nil
}

// Forget drops every cached copy of p.
func (c *ProductCache) Forget(ctx context.Context, p domain.Product) error {
	if !c.enabled() {
		return nil
	}
	keys := []string{idKey(ctx, p.ID)}
	if p.Barcode != "" {
		keys = append(keys, barcodeKey(ctx, p.Barcode))
	}
	return c.client.Del(ctx, keys...).Err()
}

func idKey(ctx context.Context, id string) string {
	biz, _ := business.From(ctx)
	return business.PrefixKey(biz, "catalog:product:id:"+id)
}

func barcodeKey(ctx context.Context, code string) string {
	biz, _ := business.From(ctx)
	return business.PrefixKey(biz, "catalog:product:barcode:"+code)
}
