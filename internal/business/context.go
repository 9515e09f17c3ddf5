// Package business scopes requests and records to a single shop.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const businessContextKey contextKey = "business.id"

var (
	// ErrMissing indicates the business identifier was not found in context.
	ErrMissing = errors.New("business missing")
	// ErrInvalid indicates the business identifier is not a UUID.
	ErrInvalid = errors.New("business invalid")
)

// With stores the business identifier inside the context.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, businessContextKey, id)
}

// From extracts the business identifier from the context if available.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(businessContextKey).(string)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	return id, true
}

// UUIDFrom returns the context business identifier parsed as a UUID.
func UUIDFrom(ctx context.Context) (uuid.UUID, error) {
	id, ok := From(ctx)
	if !ok {
		return uuid.Nil, ErrMissing
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return parsed, nil
}

// PrefixKey namespaces a cache key by business.
func PrefixKey(businessID, key string) string {
	if businessID == "" {
		return key
	}
	return businessID + ":" + key
}
