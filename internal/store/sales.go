package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/kasir-api/internal/domain"
)

const saleColumns = `id::text, business_id::text, coalesce(customer_id::text, ''), coalesce(order_id::text, ''), items,
	subtotal::text, tax::text, tax_percentage::text, discount::text, discount_percentage::text, total_amount::text,
	payment_method, status, created_at, is_refunded, coalesce(notes, '')`

// Sales stores finalized sales.
type Sales struct {
	DB *DB
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	Status     domain.SaleStatus
	CustomerID string
	From       *time.Time
	To         *time.Time
}

func scanSale(row scanner) (domain.Sale, error) {
	var s domain.Sale
	var items []byte
	err := row.Scan(&s.ID, &s.BusinessID, &s.CustomerID, &s.OrderID, &items,
		&s.Subtotal, &s.Tax, &s.TaxPercentage, &s.Discount, &s.DiscountPercentage, &s.TotalAmount,
		&s.PaymentMethod, &s.Status, &s.Timestamp, &s.IsRefunded, &s.Notes)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return domain.Sale{}, fmt.Errorf("decode sale items: %w", err)
	}
	return s, nil
}

// Insert stores a new sale. ID and Timestamp must be set by the caller.
func (r Sales) Insert(ctx context.Context, s domain.Sale) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("encode sale items: %w", err)
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO sales (id, business_id, customer_id, order_id, items, subtotal, tax, tax_percentage,
		discount, discount_percentage, total_amount, payment_method, status, is_refunded, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15, $16)`,
		s.ID, biz, nullable(s.CustomerID), nullable(s.OrderID), items,
		s.Subtotal.String(), s.Tax.String(), s.TaxPercentage.String(), s.Discount.String(), s.DiscountPercentage.String(), s.TotalAmount.String(),
		string(s.PaymentMethod), string(s.Status), s.IsRefunded, nullable(s.Notes), s.Timestamp)
	return err
}

// Get returns a sale by id.
func (r Sales) Get(ctx context.Context, id string) (domain.Sale, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate returns a sale and locks its row until the transaction ends.
func (r Sales) GetForUpdate(ctx context.Context, id string) (domain.Sale, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r Sales) get(ctx context.Context, id, suffix string) (domain.Sale, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if !validID(id) {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}
	s, err := scanSale(r.DB.q(ctx).QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE business_id = $1 AND id = $2`+suffix, biz, id))
	if err != nil {
		return domain.Sale{}, notFound(err, "sale "+id)
	}
	return s, nil
}

// List returns sales newest first.
func (r Sales) List(ctx context.Context, f SaleFilter, limit, offset int) ([]domain.Sale, int, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, 0, err
	}
	conds := []string{"business_id = $1"}
	args := []any{biz}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.CustomerID != "" {
		if !validID(f.CustomerID) {
			return nil, 0, nil
		}
		add("customer_id = ?", f.CustomerID)
	}
	if f.From != nil {
		add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		add("created_at < ?", *f.To)
	}
	where := " FROM sales WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.DB.q(ctx).QueryRow(ctx, `SELECT count(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.DB.q(ctx).Query(ctx, `SELECT `+saleColumns+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// UpdateRefundState persists the only mutable sale fields.
func (r Sales) UpdateRefundState(ctx context.Context, id string, status domain.SaleStatus, isRefunded bool) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	tag, err := r.DB.q(ctx).Exec(ctx, `UPDATE sales SET status = $3, is_refunded = $4 WHERE business_id = $1 AND id = $2`,
		biz, id, string(status), isRefunded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
