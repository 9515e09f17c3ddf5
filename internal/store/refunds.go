package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/kasir-api/internal/domain"
)

const refundColumns = `id::text, business_id::text, sale_id::text, items, reason, subtotal::text, tax_refund::text,
	total_refund::text, payment_method, coalesce(notes, ''), created_at, coalesce(processed_by, '')`

// Refunds stores the append-only refund history.
type Refunds struct {
	DB *DB
}

func scanRefund(row scanner) (domain.Refund, error) {
	var rf domain.Refund
	var items []byte
	err := row.Scan(&rf.ID, &rf.BusinessID, &rf.SaleID, &items, &rf.Reason, &rf.Subtotal, &rf.TaxRefund,
		&rf.TotalRefund, &rf.PaymentMethod, &rf.Notes, &rf.Timestamp, &rf.ProcessedBy)
	if err != nil {
		return domain.Refund{}, err
	}
	if err := json.Unmarshal(items, &rf.Items); err != nil {
		return domain.Refund{}, fmt.Errorf("decode refund items: %w", err)
	}
	return rf, nil
}

// Insert appends a refund. ID and Timestamp must be set by the caller.
func (r Refunds) Insert(ctx context.Context, rf domain.Refund) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	items, err := json.Marshal(rf.Items)
	if err != nil {
		return fmt.Errorf("encode refund items: %w", err)
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO refunds (id, business_id, sale_id, items, reason, subtotal, tax_refund,
		total_refund, payment_method, notes, processed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12)`,
		rf.ID, biz, rf.SaleID, items, string(rf.Reason), rf.Subtotal.String(), rf.TaxRefund.String(), rf.TotalRefund.String(),
		string(rf.PaymentMethod), nullable(rf.Notes), nullable(rf.ProcessedBy), rf.Timestamp)
	return err
}

// ListBySale returns the refunds for a sale, newest first.
func (r Refunds) ListBySale(ctx context.Context, saleID string) ([]domain.Refund, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return nil, err
	}
	if !validID(saleID) {
		return nil, nil
	}
	rows, err := r.DB.q(ctx).Query(ctx, `SELECT `+refundColumns+` FROM refunds
		WHERE business_id = $1 AND sale_id = $2 ORDER BY created_at DESC, id`, biz, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}
