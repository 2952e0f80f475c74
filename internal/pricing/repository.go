package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

const pricesKey = "prices"

// Repository persists the price table.
type Repository interface {
	LoadPrices(ctx context.Context) (PriceTable, error)
	SavePrices(ctx context.Context, table PriceTable) error
	DeletePrices(ctx context.Context) error
}

type repository struct {
	db db.Querier
}

// NewRepository stores prices in the settings table.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

// LoadPrices returns shared.ErrNotFound when no custom table was saved.
func (r *repository) LoadPrices(ctx context.Context) (PriceTable, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, pricesKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceTable{}, shared.ErrNotFound
	}
	if err != nil {
		return PriceTable{}, fmt.Errorf("pricing: load prices: %w", err)
	}
	var table PriceTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return PriceTable{}, fmt.Errorf("pricing: decode prices: %w", err)
	}
	return table, nil
}

func (r *repository) SavePrices(ctx context.Context, table PriceTable) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, pricesKey, raw)
	if err != nil {
		return fmt.Errorf("pricing: save prices: %w", err)
	}
	return nil
}

func (r *repository) DeletePrices(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, pricesKey); err != nil {
		return fmt.Errorf("pricing: delete prices: %w", err)
	}
	return nil
}
