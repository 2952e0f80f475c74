package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
)

type settingsService interface {
	Messages(ctx context.Context) (delivery.Settings, error)
	SaveMessages(ctx context.Context, in delivery.Settings) (delivery.Settings, error)
	ResetMessages(ctx context.Context) (delivery.Settings, error)
}

// Handler exposes the message settings.
type Handler struct {
	logger  *slog.Logger
	service settingsService
	rbac    rbac.Middleware
}

// NewHandler builds a settings Handler.
func NewHandler(logger *slog.Logger, service settingsService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers settings endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.With(h.rbac.RequireRole(rbac.RoleManager)).Get("/messages", h.getMessages)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
			r.Put("/messages", h.saveMessages)
			r.Delete("/messages", h.resetMessages)
		})
	})
}

type messagesResponse struct {
	delivery.Settings
	Placeholders []string `json:"placeholders"`
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Messages(r.Context())
	if err != nil {
		h.fail(w, "load messages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messagesResponse{Settings: out, Placeholders: delivery.Placeholders})
}

func (h *Handler) saveMessages(w http.ResponseWriter, r *http.Request) {
	var in delivery.Settings
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.SaveMessages(r.Context(), in)
	if err != nil {
		h.fail(w, "save messages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messagesResponse{Settings: out, Placeholders: delivery.Placeholders})
}

func (h *Handler) resetMessages(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ResetMessages(r.Context())
	if err != nil {
		h.fail(w, "reset messages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messagesResponse{Settings: out, Placeholders: delivery.Placeholders})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("settings "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
