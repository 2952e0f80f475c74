package rbac

import (
	"log/slog"
	"net/http"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/shared"
)

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireRole ensures the current session holds at least min.
func (m Middleware) RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			role := Role(sess.Role)
			if !role.Allows(min) {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.Int64("user_id", sess.UserID),
						slog.String("role", sess.Role),
						slog.String("required", string(min)),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
