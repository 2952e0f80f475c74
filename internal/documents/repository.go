package documents

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

// Repository persists document sends.
type Repository interface {
	EnsureSends(ctx context.Context, closureID int64) ([]Send, error)
	Get(ctx context.Context, id int64) (Send, error)
	ListByClosures(ctx context.Context, closureIDs []int64) (map[int64][]Send, error)
	Save(ctx context.Context, s Send) (Send, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (Send, error)
	DeleteByClosure(ctx context.Context, closureID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const sendSelect = `SELECT id, closure_id, kind, status, retries, last_error, sent_at, notes FROM document_sends`

func scanSend(row pgx.Row) (Send, error) {
	var s Send
	if err := row.Scan(&s.ID, &s.ClosureID, &s.Kind, &s.Status, &s.Retries, &s.LastError, &s.SentAt, &s.Notes); err != nil {
		return Send{}, db.MapError(err)
	}
	return s, nil
}

func listSends(ctx context.Context, q db.Querier, sql string, args ...any) ([]Send, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("documents: query: %w", err)
	}
	defer rows.Close()
	var out []Send
	for rows.Next() {
		s, err := scanSend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EnsureSends creates the pending sends of a closure in one transaction. Rows
// that already exist are left untouched.
func (r *repository) EnsureSends(ctx context.Context, closureID int64) ([]Send, error) {
	var sends []Send
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, kind := range Kinds {
			batch.Queue(`INSERT INTO document_sends (closure_id, kind, status, retries)
VALUES ($1, $2, $3, 0)
ON CONFLICT ON CONSTRAINT document_sends_closure_kind_key DO NOTHING`, closureID, kind, SendPending)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("documents: ensure sends for closure %d: %w", closureID, db.MapError(err))
		}
		var err error
		sends, err = listSends(ctx, tx, sendSelect+` WHERE closure_id = $1 ORDER BY id`, closureID)
		return err
	})
	return sends, err
}

func (r *repository) Get(ctx context.Context, id int64) (Send, error) {
	s, err := scanSend(r.pool.QueryRow(ctx, sendSelect+` WHERE id = $1`, id))
	if err != nil {
		return Send{}, fmt.Errorf("document send %d: %w", id, err)
	}
	return s, nil
}

func (r *repository) ListByClosures(ctx context.Context, closureIDs []int64) (map[int64][]Send, error) {
	out := make(map[int64][]Send, len(closureIDs))
	if len(closureIDs) == 0 {
		return out, nil
	}
	sends, err := listSends(ctx, r.pool, sendSelect+` WHERE closure_id = ANY($1) ORDER BY closure_id, id`, closureIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range sends {
		out[s.ClosureID] = append(out[s.ClosureID], s)
	}
	return out, nil
}

func (r *repository) Save(ctx context.Context, s Send) (Send, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE document_sends SET status = $2, retries = $3, last_error = $4, sent_at = $5 WHERE id = $1`,
		s.ID, s.Status, s.Retries, s.LastError, s.SentAt)
	if err != nil {
		return Send{}, fmt.Errorf("documents: save send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Send{}, fmt.Errorf("document send %d: %w", s.ID, shared.ErrNotFound)
	}
	return r.Get(ctx, s.ID)
}

func (r *repository) UpdateNotes(ctx context.Context, id int64, notes string) (Send, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE document_sends SET notes = $2 WHERE id = $1`, id, notes)
	if err != nil {
		return Send{}, fmt.Errorf("documents: update notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Send{}, fmt.Errorf("document send %d: %w", id, shared.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r *repository) DeleteByClosure(ctx context.Context, closureID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM document_sends WHERE closure_id = $1`, closureID); err != nil {
		return fmt.Errorf("documents: delete sends of closure %d: %w", closureID, err)
	}
	return nil
}
