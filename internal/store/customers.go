package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/kasir-api/internal/domain"
)

const customerColumns = `id::text, name, coalesce(email, ''), coalesce(phone, ''), coalesce(address, ''), discount_eligibility`

// Customers stores the business customer directory.
type Customers struct {
	DB *DB
}

func scanCustomer(row scanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.DiscountEligibility)
	return c, err
}

// Get returns a customer by id.
func (r Customers) Get(ctx context.Context, id string) (domain.Customer, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	if !validID(id) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	}
	c, err := scanCustomer(r.DB.q(ctx).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE business_id = $1 AND id = $2`, biz, id))
	if err != nil {
		return domain.Customer{}, notFound(err, "customer "+id)
	}
	return c, nil
}

// Search matches name, email or phone by case-insensitive substring. An empty
// query lists customers alphabetically.
func (r Customers) Search(ctx context.Context, query string, limit, offset int) ([]domain.Customer, int, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, 0, err
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	const where = ` FROM customers WHERE business_id = $1
		AND (lower(name) LIKE $2 OR lower(coalesce(email, '')) LIKE $2 OR coalesce(phone, '') LIKE $2)`
	var total int
	if err := r.DB.q(ctx).QueryRow(ctx, `SELECT count(*)`+where, biz, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.q(ctx).Query(ctx, `SELECT `+customerColumns+where+` ORDER BY lower(name), id LIMIT $3 OFFSET $4`, biz, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Create inserts a customer. A duplicate email yields domain.ErrConflict.
func (r Customers) Create(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO customers (id, business_id, name, email, phone, address, discount_eligibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, biz, c.Name, nullable(c.Email), nullable(c.Phone), nullable(c.Address), c.DiscountEligibility)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, fmt.Errorf("customer email %s: %w", c.Email, domain.ErrConflict)
		}
		return domain.Customer{}, err
	}
	return c, nil
}
