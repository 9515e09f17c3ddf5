package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Settings are the per-business checkout defaults.
type Settings struct {
	Name              string          `json:"name"`
	DefaultTaxRate    decimal.Decimal `json:"default_tax_rate"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

// Businesses reads business settings.
type Businesses struct {
	DB *DB
	// Fallback applies when the business has no stored row.
	Fallback Settings
}

// Settings returns the context business settings, or Fallback when none are stored.
func (r Businesses) Settings(ctx context.Context) (Settings, error) {
	biz, err := businessID(ctx)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	err = r.DB.q(ctx).QueryRow(ctx, `SELECT name, default_tax_rate::text, low_stock_threshold FROM businesses WHERE id = $1`, biz).
		Scan(&s.Name, &s.DefaultTaxRate, &s.LowStockThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.Fallback, nil
	}
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Upsert creates or updates the context business.
func (r Businesses) Upsert(ctx context.Context, s Settings) error {
	biz, err := businessID(ctx)
	if err != nil {
		return err
	}
	_, err = r.DB.q(ctx).Exec(ctx, `INSERT INTO businesses (id, name, default_tax_rate, low_stock_threshold)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, default_tax_rate = EXCLUDED.default_tax_rate,
			low_stock_threshold = EXCLUDED.low_stock_threshold`,
		biz, s.Name, s.DefaultTaxRate.String(), s.LowStockThreshold)
	return err
}
