package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// Stock movement reasons.
const (
	MovementSale       = "sale"
	MovementRefund     = "refund"
	MovementOrder      = "order"
	MovementAdjustment = "adjustment"
)

const productColumns = `p.id::text, p.name, p.price::text, p.quantity, coalesce(p.barcode, ''), coalesce(p.sku, ''),
	coalesce(p.category_id::text, ''), coalesce(c.name, '')`

const productFrom = ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`

// Products reads and mutates the catalog for the context business.
type Products struct {
	DB *DB
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.Barcode, &p.SKU, &p.CategoryID, &p.CategoryName)
	return p, err
}

// Get returns a product by id.
func (r Products) Get(ctx context.Context, id string) (domain.Product, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if !validID(id) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	row := r.DB.q(ctx).QueryRow(ctx, `SELECT `+productColumns+productFrom+` WHERE p.business_id = $1 AND p.id = $2`, biz, id)
	p, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, notFound(err, "product "+id)
	}
	return p, nil
}

// ByBarcode returns the oldest product carrying the exact barcode.
func (r Products) ByBarcode(ctx context.Context, code string) (domain.Product, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	row := r.DB.q(ctx).QueryRow(ctx, `SELECT `+productColumns+productFrom+`
		WHERE p.business_id = $1 AND p.barcode = $2 ORDER BY p.created_at, p.id LIMIT 1`, biz, code)
	p, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, notFound(err, "barcode "+code)
	}
	return p, nil
}

// List returns products whose name, barcode or sku contain query.
func (r Products) List(ctx context.Context, query string, limit, offset int) ([]domain.Product, int, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, 0, err
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	const where = ` WHERE p.business_id = $1 AND (lower(p.name) LIKE $2 OR coalesce(p.barcode, '') LIKE $2 OR lower(coalesce(p.sku, '')) LIKE $2)`

	var total int
	if err := r.DB.q(ctx).QueryRow(ctx, `SELECT count(*)`+productFrom+where, biz, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.q(ctx).Query(ctx, `SELECT `+productColumns+productFrom+where+` ORDER BY lower(p.name), p.id LIMIT $3 OFFSET $4`, biz, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// LockMany loads and row-locks the products in a stable order. It must run
// inside a transaction. Missing ids are reported with domain.ErrNotFound.
func (r Products) LockMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, err
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]domain.Product, len(sorted))
	for _, id := range sorted {
		if _, done := out[id]; done {
			continue
		}
		if !validID(id) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		row := r.DB.q(ctx).QueryRow(ctx, `SELECT `+productColumns+productFrom+`
			WHERE p.business_id = $1 AND p.id = $2 FOR UPDATE OF p`, biz, id)
		p, err := scanProduct(row)
		if err != nil {
			return nil, notFound(err, "product "+id)
		}
		out[id] = p
	}
	return out, nil
}

// AdjustStock applies delta to on-hand stock and records the movement.
// Stock never goes below zero; such adjustments fail with domain.ErrInsufficientStock.
func (r Products) AdjustStock(ctx context.Context, id string, delta int, reason, referenceID string) (domain.Product, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if !validID(id) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	var quantity int
	err = r.DB.q(ctx).QueryRow(ctx, `UPDATE products SET quantity = quantity + $3, updated_at = now()
		WHERE business_id = $1 AND id = $2 AND quantity + $3 >= 0 RETURNING quantity`, biz, id, delta).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return domain.Product{}, getErr
		}
		return domain.Product{}, fmt.Errorf("product %s delta %d: %w", id, delta, domain.ErrInsufficientStock)
	}
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := r.DB.q(ctx).Exec(ctx, `INSERT INTO stock_movements (id, business_id, product_id, delta, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)`, uuid.NewString(), biz, id, delta, reason, nullable(referenceID)); err != nil {
		return domain.Product{}, fmt.Errorf("record stock movement: %w", err)
	}
	return r.Get(ctx, id)
}

// Create inserts a product, assigning an id when empty.
func (r Products) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO products (id, business_id, category_id, name, price, quantity, barcode, sku)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		p.ID, biz, nullable(p.CategoryID), p.Name, p.Price.String(), p.Quantity, nullable(p.Barcode), nullable(p.SKU))
	if err != nil {
		return domain.Product{}, err
	}
	return r.Get(ctx, p.ID)
}

// CreateCategory inserts a category and returns its id.
func (r Products) CreateCategory(ctx context.Context, name string) (string, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO categories (id, business_id, name) VALUES ($1, $2, $3)`, id, biz, name)
	return id, err
}
