package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

type authService interface {
	Authenticate(ctx context.Context, in Credentials) (*User, error)
	Register(ctx context.Context, in RegisterInput) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        authService
	sessionManager *shared.SessionManager
	rbac           rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service authService, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, sessionManager: sessions, rbac: rbac}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.With(h.rbac.RequireRole(rbac.RoleOperator)).Get("/me", h.handleMe)
		r.With(h.rbac.RequireRole(rbac.RoleAdmin)).Post("/users", h.handleRegister)
	})
}

// LoadSession attaches the cookie session, when there is one, to the request
// context. Requests without a valid session continue anonymously.
func (h *Handler) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessionManager.Load(r.Context(), r)
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthorized) {
				h.logger.Warn("load session", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in Credentials
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), in)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) && !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.sessionManager.Create(r.Context(), w, shared.Session{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	}); err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.sessionManager.Destroy(r.Context(), w, sess); err != nil {
			h.logger.Warn("destroy session", slog.Any("error", err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}
