package closing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

// Repository persists closures.
type Repository interface {
	Get(ctx context.Context, id int64) (Closure, error)
	List(ctx context.Context, month, year int) ([]Closure, error)
	Upsert(ctx context.Context, in UpsertInput) (Closure, error)
	UpdateStatus(ctx context.Context, upd StatusUpdate) (Closure, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (Closure, error)
	Override(ctx context.Context, id int64, in OverrideInput, at time.Time) (Closure, error)
	Delete(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context, status Status) (int, error)
}

type repository struct {
	db db.Querier
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const closureSelect = `SELECT f.id, f.company_id, c.name, f.month, f.year, f.total_p, f.total_m, f.total_g, f.total_value,
f.status, f.closed_on, f.notes, f.last_error, f.last_sent_at, f.overridden, f.overridden_by, f.overridden_at,
f.override_reason, f.updated_at
FROM closures f JOIN companies c ON c.id = f.company_id`

func scanClosure(row pgx.Row) (Closure, error) {
	var (
		c        Closure
		closedOn *time.Time
	)
	err := row.Scan(&c.ID, &c.CompanyID, &c.CompanyName, &c.Month, &c.Year, &c.TotalP, &c.TotalM, &c.TotalG,
		&c.TotalValue, &c.Status, &closedOn, &c.Notes, &c.LastError, &c.LastSentAt, &c.Overridden,
		&c.OverriddenBy, &c.OverriddenAt, &c.OverrideReason, &c.UpdatedAt)
	if err != nil {
		return Closure{}, db.MapError(err)
	}
	if closedOn != nil {
		c.ClosedOn = *closedOn
	}
	return c, nil
}

func (r *repository) collect(ctx context.Context, sql string, args ...any) ([]Closure, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("closing: query: %w", err)
	}
	defer rows.Close()
	var out []Closure
	for rows.Next() {
		c, err := scanClosure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Closure, error) {
	c, err := scanClosure(r.db.QueryRow(ctx, closureSelect+` WHERE f.id = $1`, id))
	if err != nil {
		return Closure{}, fmt.Errorf("closure %d: %w", id, err)
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, month, year int) ([]Closure, error) {
	return r.collect(ctx, closureSelect+` WHERE f.month = $1 AND f.year = $2 ORDER BY f.company_id`, month, year)
}

// Upsert overwrites totals on an existing key and clears any manual override.
// Status, notes and closing date of an existing row are left as they are.
func (r *repository) Upsert(ctx context.Context, in UpsertInput) (Closure, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO closures (company_id, month, year, total_p, total_m, total_g, total_value, status, closed_on)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT ON CONSTRAINT closures_company_month_year_key DO UPDATE SET
    total_p = EXCLUDED.total_p,
    total_m = EXCLUDED.total_m,
    total_g = EXCLUDED.total_g,
    total_value = EXCLUDED.total_value,
    overridden = FALSE,
    overridden_by = NULL,
    overridden_at = NULL,
    override_reason = '',
    updated_at = NOW()
RETURNING id`,
		in.CompanyID, in.Month, in.Year, in.Totals.TotalP, in.Totals.TotalM, in.Totals.TotalG, in.Totals.Value,
		StatusPending, shared.DateOnly(in.ClosedOn)).Scan(&id)
	if err != nil {
		return Closure{}, fmt.Errorf("closing: upsert company %d: %w", in.CompanyID, db.MapError(err))
	}
	return r.Get(ctx, id)
}

func (r *repository) UpdateStatus(ctx context.Context, upd StatusUpdate) (Closure, error) {
	tag, err := r.db.Exec(ctx, `UPDATE closures SET status = $2, last_error = $3, last_sent_at = $4, updated_at = NOW() WHERE id = $1`,
		upd.ID, upd.Status, upd.LastError, upd.LastSentAt)
	if err != nil {
		return Closure{}, fmt.Errorf("closing: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Closure{}, fmt.Errorf("closure %d: %w", upd.ID, shared.ErrNotFound)
	}
	return r.Get(ctx, upd.ID)
}

func (r *repository) UpdateNotes(ctx context.Context, id int64, notes string) (Closure, error) {
	tag, err := r.db.Exec(ctx, `UPDATE closures SET notes = $2, updated_at = NOW() WHERE id = $1`, id, notes)
	if err != nil {
		return Closure{}, fmt.Errorf("closing: update notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Closure{}, fmt.Errorf("closure %d: %w", id, shared.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r *repository) Override(ctx context.Context, id int64, in OverrideInput, at time.Time) (Closure, error) {
	tag, err := r.db.Exec(ctx, `UPDATE closures SET total_p = $2, total_m = $3, total_g = $4, total_value = $5,
overridden = TRUE, overridden_by = $6, overridden_at = $7, override_reason = $8, updated_at = NOW()
WHERE id = $1`, id, in.TotalP, in.TotalM, in.TotalG, in.TotalValue, in.ActorID, at, in.Reason)
	if err != nil {
		return Closure{}, fmt.Errorf("closing: override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Closure{}, fmt.Errorf("closure %d: %w", id, shared.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM closures WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("closure %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM closures WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("closing: count by status: %w", err)
	}
	return n, nil
}
