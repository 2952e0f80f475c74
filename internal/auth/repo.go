package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmitas/backoffice/internal/platform/db"
)

// Repository defines persistence operations for users.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u User) (*User, error)
	TouchLastAccess(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{db: q}
}

const userSelect = `SELECT id, email, name, role, active, password_hash, last_access_at, created_at FROM users`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Active, &u.PasswordHash, &u.LastAccessAt, &u.CreatedAt); err != nil {
		return nil, db.MapError(err)
	}
	return &u, nil
}

// FindByEmail fetches a user by e-mail, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, userSelect+` WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// Get fetches a user by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, userSelect+` WHERE id = $1`, id))
}

// Create inserts a user. A duplicate e-mail yields shared.ErrConflict.
func (r *PGRepository) Create(ctx context.Context, u User) (*User, error) {
	created, err := scanUser(r.db.QueryRow(ctx, `INSERT INTO users (email, name, role, password_hash, active)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, name, role, active, password_hash, last_access_at, created_at`,
		strings.ToLower(u.Email), u.Name, u.Role, u.PasswordHash, u.Active))
	if err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return created, nil
}

// TouchLastAccess stamps a successful login.
func (r *PGRepository) TouchLastAccess(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_access_at = $2 WHERE id = $1`, id, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
