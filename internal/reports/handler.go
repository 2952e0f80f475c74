package reports

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
)

type reportsService interface {
	Overview(ctx context.Context, month, year int) (Overview, error)
	Dashboard(ctx context.Context) (Dashboard, error)
}

// Handler serves report endpoints.
type Handler struct {
	logger  *slog.Logger
	service reportsService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs a reports Handler.
func NewHandler(logger *slog.Logger, service reportsService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers report routes. The dashboard is open to operators.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(h.rbac.RequireRole(rbac.RoleOperator)).Get("/dashboard", h.dashboard)
		r.With(h.rbac.RequireRole(rbac.RoleManager)).Get("/overview", h.overview)
	})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	month, err := httpx.IntQuery(r, "month", int(now.Month()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := httpx.IntQuery(r, "year", now.Year())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ov, err := h.service.Overview(r.Context(), month, year)
	if err != nil {
		h.fail(w, "overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ov)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("reports "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
