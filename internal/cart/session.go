package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// Snapshot is the serialisable form of a cart.
type Snapshot struct {
	Items    []domain.LineItem `json:"items"`
	Customer *domain.Customer  `json:"customer,omitempty"`
	SavedAt  time.Time         `json:"saved_at"`
}

// Snapshot captures the cart contents.
func (c *Cart) Snapshot() Snapshot {
	snap := Snapshot{Items: c.Items()}
	if cust, ok := c.Customer(); ok {
		snap.Customer = &cust
	}
	return snap
}

// Restore rebuilds a cart from a snapshot, merging duplicate and dropping non-positive lines.
func Restore(s Snapshot) *Cart {
	c := New()
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			continue
		}
		if line, ok := c.lines[it.ProductID]; ok {
			line.Quantity += it.Quantity
			continue
		}
		item := it
		c.lines[it.ProductID] = &item
		c.order = append(c.order, it.ProductID)
	}
	c.SetCustomer(s.Customer)
	return c
}

// SessionStore keeps terminal cart sessions in Redis so in-progress input
// survives a failed submission or a terminal restart. Keys are scoped to
// BusinessID the same way server-side keys are, so terminal ids only need to
// be unique within a business.
type SessionStore struct {
	R          *redis.Client
	BusinessID string
	TTL        time.Duration
	Prefix     string
	Now        func() time.Time
}

// Save stores the cart for the terminal, refreshing the TTL.
func (s SessionStore) Save(ctx context.Context, terminalID string, c *Cart) error {
	if s.R == nil {
		return errors.New("cart session: redis client not configured")
	}
	key, err := s.key(terminalID)
	if err != nil {
		return err
	}
	snap := c.Snapshot()
	snap.SavedAt = s.now()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cart session: encode: %w", err)
	}
	return s.R.Set(ctx, key, data, s.ttl()).Err()
}

// Load restores the terminal cart. A missing session yields an empty cart.
func (s SessionStore) Load(ctx context.Context, terminalID string) (*Cart, error) {
	if s.R == nil {
		return nil, errors.New("cart session: redis client not configured")
	}
	key, err := s.key(terminalID)
	if err != nil {
		return nil, err
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(), nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("cart session: decode: %w", err)
	}
	return Restore(snap), nil
}

// Discard removes the session after a confirmed sale or an explicit clear.
func (s SessionStore) Discard(ctx context.Context, terminalID string) error {
	if s.R == nil {
		return errors.New("cart session: redis client not configured")
	}
	key, err := s.key(terminalID)
	if err != nil {
		return err
	}
	return s.R.Del(ctx, key).Err()
}

func (s SessionStore) key(terminalID string) (string, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return "", errors.New("cart session: terminal id is required")
	}
	businessID := strings.TrimSpace(s.BusinessID)
	if businessID == "" {
		return "", errors.New("cart session: business id is required")
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:session:"
	}
	return businessID + ":" + prefix + terminalID, nil
}

func (s SessionStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

func (s SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
