// Package customer manages the business customer directory.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// ErrInvalidPhone is returned for phone numbers that do not carry 8 to 15 digits.
var ErrInvalidPhone = errors.New("phone number must contain 8 to 15 digits")

// Store persists customers.
type Store interface {
	Get(ctx context.Context, id string) (domain.Customer, error)
	Search(ctx context.Context, query string, limit, offset int) ([]domain.Customer, int, error)
	Create(ctx context.Context, c domain.Customer) (domain.Customer, error)
}

// CreateRequest is the customer creation payload.
type CreateRequest struct {
	Name                string `json:"name" validate:"required,max=120"`
	Email               string `json:"email" validate:"required,email,max=254"`
	Phone               string `json:"phone,omitempty" validate:"max=32"`
	Address             string `json:"address,omitempty" validate:"max=300"`
	DiscountEligibility bool   `json:"discount_eligibility"`
}

// Service implements customer lookups and creation.
type Service struct {
	Store  Store
	Logger zerolog.Logger
}

// Get returns a customer by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Customer, error) {
	if s == nil || s.Store == nil {
		return domain.Customer{}, errors.New("customer service not configured")
	}
	return s.Store.Get(ctx, id)
}

// Search matches name, email or phone by substring. An empty query lists everyone.
func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]domain.Customer, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("customer service not configured")
	}
	return s.Store.Search(ctx, strings.TrimSpace(query), limit, offset)
}

// Create normalises and stores a new customer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Customer, error) {
	if s == nil || s.Store == nil {
		return domain.Customer{}, errors.New("customer service not configured")
	}
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return domain.Customer{}, err
	}
	c, err := s.Store.Create(ctx, domain.Customer{
		Name:                strings.TrimSpace(req.Name),
		Email:               strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:               phone,
		Address:             strings.TrimSpace(req.Address),
		DiscountEligibility: req.DiscountEligibility,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.Logger.Info().Str("customer_id", c.ID).Msg("customer_created")
	return c, nil
}

// NormalizePhone strips separators, keeping a leading plus. Empty input is allowed.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var b strings.Builder
	if strings.HasPrefix(raw, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 8 || digits > 15 {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidPhone)
	}
	return b.String(), nil
}
