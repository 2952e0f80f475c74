package consumption

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

// Repository persists consumption records.
type Repository interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

type repository struct {
	db db.Querier
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const recordSelect = `SELECT r.id, r.company_id, c.name, r.responsible, r.consumed_on, r.size, r.quantity, r.extras,
r.meals_value, r.extras_value, r.discount_value, r.total_price, r.notes, r.created_at
FROM consumption_records r JOIN companies c ON c.id = r.company_id`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		extras []byte
	)
	err := row.Scan(&rec.ID, &rec.CompanyID, &rec.CompanyName, &rec.Responsible, &rec.Date, &rec.Size, &rec.Quantity,
		&extras, &rec.MealsValue, &rec.ExtrasValue, &rec.DiscountValue, &rec.TotalPrice, &rec.Notes, &rec.CreatedAt)
	if err != nil {
		return Record{}, db.MapError(err)
	}
	if len(extras) > 0 {
		if err := json.Unmarshal(extras, &rec.Extras); err != nil {
			return Record{}, fmt.Errorf("consumption: decode extras: %w", err)
		}
	}
	return rec, nil
}

func (r *repository) Insert(ctx context.Context, rec Record) (Record, error) {
	extras, err := json.Marshal(rec.Extras)
	if err != nil {
		return Record{}, err
	}
	if rec.Extras == nil {
		extras = []byte("[]")
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO consumption_records
(company_id, responsible, consumed_on, size, quantity, extras, meals_value, extras_value, discount_value, total_price, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		rec.CompanyID, rec.Responsible, rec.Date, rec.Size, rec.Quantity, extras,
		rec.MealsValue, rec.ExtrasValue, rec.DiscountValue, rec.TotalPrice, rec.Notes).Scan(&id)
	if err != nil {
		return Record{}, db.MapError(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Get(ctx context.Context, id int64) (Record, error) {
	return scanRecord(r.db.QueryRow(ctx, recordSelect+` WHERE r.id = $1`, id))
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM consumption_records WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("consumption record %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if !filter.Date.IsZero() {
		add("r.consumed_on = $%d", shared.DateOnly(filter.Date))
	}
	if !filter.From.IsZero() {
		add("r.consumed_on >= $%d", shared.DateOnly(filter.From))
	}
	if !filter.To.IsZero() {
		add("r.consumed_on < $%d", shared.DateOnly(filter.To))
	}
	if filter.CompanyID > 0 {
		add("r.company_id = $%d", filter.CompanyID)
	}
	query := recordSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.consumed_on DESC, r.created_at DESC, r.id DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consumption: list: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
