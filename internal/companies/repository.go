package companies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/shared"
)

// Repository persists companies.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Company, error)
	ListActive(ctx context.Context) ([]Company, error)
	Get(ctx context.Context, id int64) (Company, error)
	Create(ctx context.Context, c Company) (Company, error)
	Update(ctx context.Context, c Company) (Company, error)
	SetActive(ctx context.Context, id int64, active bool) (Company, error)
	HasHistory(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db db.Querier
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const companyColumns = `id, name, tax_id, address, responsible, contact, email, payment_method, discount_percent, active, created_at`

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.Responsible, &c.Contact, &c.Email,
		&c.PaymentMethod, &c.DiscountPercent, &c.Active, &c.CreatedAt)
	if err != nil {
		return Company{}, db.MapError(err)
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Company, error) {
	var (
		conditions []string
		args       []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR responsible ILIKE $%d OR tax_id ILIKE $%d)", len(args), len(args), len(args)))
	}
	switch filter.Status {
	case StatusActive:
		conditions = append(conditions, "active")
	case StatusInactive:
		conditions = append(conditions, "NOT active")
	}
	query := `SELECT ` + companyColumns + ` FROM companies`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name, id"
	return r.query(ctx, query, args...)
}

func (r *repository) ListActive(ctx context.Context) ([]Company, error) {
	return r.query(ctx, `SELECT `+companyColumns+` FROM companies WHERE active ORDER BY id`)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Company, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("companies: query: %w", err)
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Company{}, fmt.Errorf("company %d: %w", id, shared.ErrNotFound)
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, c Company) (Company, error) {
	return scanCompany(r.db.QueryRow(ctx, `INSERT INTO companies (name, tax_id, address, responsible, contact, email, payment_method, discount_percent, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+companyColumns,
		c.Name, c.TaxID, c.Address, c.Responsible, c.Contact, c.Email, c.PaymentMethod, c.DiscountPercent, c.Active))
}

func (r *repository) Update(ctx context.Context, c Company) (Company, error) {
	return scanCompany(r.db.QueryRow(ctx, `UPDATE companies SET name = $2, tax_id = $3, address = $4, responsible = $5, contact = $6,
email = $7, payment_method = $8, discount_percent = $9, active = $10
WHERE id = $1
RETURNING `+companyColumns,
		c.ID, c.Name, c.TaxID, c.Address, c.Responsible, c.Contact, c.Email, c.PaymentMethod, c.DiscountPercent, c.Active))
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) (Company, error) {
	return scanCompany(r.db.QueryRow(ctx, `UPDATE companies SET active = $2 WHERE id = $1 RETURNING `+companyColumns, id, active))
}

func (r *repository) HasHistory(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM consumption_records WHERE company_id = $1)
OR EXISTS (SELECT 1 FROM closures WHERE company_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("companies: history: %w", err)
	}
	return exists, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
