// Package settings stores the operator-editable configuration of outbound
// messages.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

const messagesKey = "messages"

// Repository persists message settings.
type Repository interface {
	LoadMessages(ctx context.Context) (delivery.Settings, error)
	SaveMessages(ctx context.Context, s delivery.Settings) error
	DeleteMessages(ctx context.Context) error
}

type repository struct {
	db db.Querier
}

// NewRepository stores message settings in the settings table.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

// LoadMessages returns shared.ErrNotFound when nothing was saved.
func (r *repository) LoadMessages(ctx context.Context) (delivery.Settings, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, messagesKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return delivery.Settings{}, shared.ErrNotFound
	}
	if err != nil {
		return delivery.Settings{}, fmt.Errorf("settings: load messages: %w", err)
	}
	var out delivery.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return delivery.Settings{}, fmt.Errorf("settings: decode messages: %w", err)
	}
	return out, nil
}

func (r *repository) SaveMessages(ctx context.Context, s delivery.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, messagesKey, raw)
	if err != nil {
		return fmt.Errorf("settings: save messages: %w", err)
	}
	return nil
}

func (r *repository) DeleteMessages(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, messagesKey); err != nil {
		return fmt.Errorf("settings: delete messages: %w", err)
	}
	return nil
}
