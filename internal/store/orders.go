package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/kasir-api/internal/domain"
)

const orderColumns = `id::text, business_id::text, customer_id::text, items, subtotal::text, tax_amount::text, tax_percentage::text,
	discount_amount::text, discount_percentage::text, total_amount::text, status, created_at, delivery_date, completed_at,
	coalesce(sale_id::text, '')`

// Orders stores customer orders.
type Orders struct {
	DB *DB
}

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	var items []byte
	err := row.Scan(&o.ID, &o.BusinessID, &o.CustomerID, &items, &o.Subtotal, &o.TaxAmount, &o.TaxPercentage,
		&o.DiscountAmount, &o.DiscountPercentage, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.DeliveryDate, &o.CompletedAt,
		&o.SaleID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	return o, nil
}

// Insert stores a new order. ID and CreatedAt must be set by the caller.
func (r Orders) Insert(ctx context.Context, o domain.Order) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO orders (id, business_id, customer_id, items, subtotal, tax_amount, tax_percentage,
		discount_amount, discount_percentage, total_amount, status, delivery_date, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13)`,
		o.ID, biz, o.CustomerID, items, o.Subtotal.String(), o.TaxAmount.String(), o.TaxPercentage.String(),
		o.DiscountAmount.String(), o.DiscountPercentage.String(), o.TotalAmount.String(), string(o.Status), o.DeliveryDate, o.CreatedAt)
	return err
}

// Get returns an order by id.
func (r Orders) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate returns an order and locks its row until the transaction ends.
func (r Orders) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r Orders) get(ctx context.Context, id, suffix string) (domain.Order, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if !validID(id) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	o, err := scanOrder(r.DB.q(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE business_id = $1 AND id = $2`+suffix, biz, id))
	if err != nil {
		return domain.Order{}, notFound(err, "order "+id)
	}
	return o, nil
}

// List returns orders newest first, optionally filtered by status.
func (r Orders) List(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, int, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, 0, err
	}
	const where = ` FROM orders WHERE business_id = $1 AND ($2 = '' OR status = $2)`
	var total int
	if err := r.DB.q(ctx).QueryRow(ctx, `SELECT count(*)`+where, biz, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.q(ctx).Query(ctx, `SELECT `+orderColumns+where+` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		biz, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateTerms persists delivery date, rates and recomputed amounts.
func (r Orders) UpdateTerms(ctx context.Context, o domain.Order) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	tag, err := r.DB.q(ctx).Exec(ctx, `UPDATE orders SET delivery_date = $3, tax_percentage = $4::numeric, tax_amount = $5::numeric,
		discount_percentage = $6::numeric, discount_amount = $7::numeric, total_amount = $8::numeric
		WHERE business_id = $1 AND id = $2 AND status = 'pending'`,
		biz, o.ID, o.DeliveryDate, o.TaxPercentage.String(), o.TaxAmount.String(),
		o.DiscountPercentage.String(), o.DiscountAmount.String(), o.TotalAmount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

// SetStatus records a lifecycle transition.
func (r Orders) SetStatus(ctx context.Context, id string, status domain.OrderStatus, completedAt *time.Time, saleID string) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	tag, err := r.DB.q(ctx).Exec(ctx, `UPDATE orders SET status = $3, completed_at = $4, sale_id = $5
		WHERE business_id = $1 AND id = $2`, biz, id, string(status), completedAt, nullable(saleID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
