package auth

import (
	"time"

	"github.com/marmitas/backoffice/internal/rbac"
)

// User represents a back-office account.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         rbac.Role  `json:"role"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"-"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RegisterInput creates a user.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Credentials are submitted on login.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
