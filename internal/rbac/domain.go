// Package rbac gates HTTP routes by the role carried in the session.
package rbac

import (
	"fmt"
	"strings"

	"github.com/marmitas/backoffice/internal/shared"
)

// Role is a back-office access level. Higher roles include lower ones.
type Role string

const (
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Rank orders roles: operator < manager < admin. Unknown roles rank zero.
func (r Role) Rank() int {
	switch r {
	case RoleOperator:
		return 1
	case RoleManager:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Allows reports whether r satisfies the minimum role.
func (r Role) Allows(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// ParseRole accepts the English role names and the legacy Portuguese ones.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin, nil
	case "manager", "gerente":
		return RoleManager, nil
	case "operator", "operador":
		return RoleOperator, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, raw)
	}
}
