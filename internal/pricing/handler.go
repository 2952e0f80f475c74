package pricing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
)

type pricingService interface {
	Prices(ctx context.Context) (PriceTable, error)
	SavePrices(ctx context.Context, table PriceTable) (PriceTable, error)
	ResetPrices(ctx context.Context) (PriceTable, error)
	Quote(ctx context.Context, in QuoteInput) (Breakdown, error)
}

// Handler exposes the price table and live quotes.
type Handler struct {
	logger  *slog.Logger
	service pricingService
	rbac    rbac.Middleware
}

// NewHandler builds a pricing Handler.
func NewHandler(logger *slog.Logger, service pricingService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers pricing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pricing", func(r chi.Router) {
		r.With(h.rbac.RequireRole(rbac.RoleOperator)).Get("/prices", h.getPrices)
		r.With(h.rbac.RequireRole(rbac.RoleOperator)).Post("/quote", h.quote)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
			r.Put("/prices", h.savePrices)
			r.Delete("/prices", h.resetPrices)
		})
	})
}

func (h *Handler) getPrices(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.Prices(r.Context())
	if err != nil {
		h.fail(w, "load prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}

func (h *Handler) savePrices(w http.ResponseWriter, r *http.Request) {
	var table PriceTable
	if err := httpx.DecodeJSON(r, &table); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.service.SavePrices(r.Context(), table)
	if err != nil {
		h.fail(w, "save prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) resetPrices(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.ResetPrices(r.Context())
	if err != nil {
		h.fail(w, "reset prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var in QuoteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	breakdown, err := h.service.Quote(r.Context(), in)
	if err != nil {
		h.fail(w, "quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("pricing "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
