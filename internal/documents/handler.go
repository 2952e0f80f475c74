package documents

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
)

type documentsService interface {
	Overview(ctx context.Context, month, year int, status SendStatus) (Overview, error)
	EnsureSends(ctx context.Context, closureID int64) ([]Send, error)
	Resend(ctx context.Context, id int64) (Send, error)
	MarkSent(ctx context.Context, id int64) (Send, error)
	AddNote(ctx context.Context, id int64, text string) (Send, error)
}

// Handler wires document send endpoints.
type Handler struct {
	logger  *slog.Logger
	service documentsService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs a documents Handler.
func NewHandler(logger *slog.Logger, service documentsService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers document routes for managers and above.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleManager))
		r.Get("/", h.overview)
		r.Post("/closures/{closureID}", h.ensure)
		r.Post("/{id}/resend", h.resend)
		r.Post("/{id}/mark-sent", h.markSent)
		r.Put("/{id}/notes", h.notes)
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
	status, err := ParseSendStatus(r.URL.Query().Get("status"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ov, err := h.service.Overview(r.Context(), month, year, status)
	if err != nil {
		h.fail(w, "overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ov)
}

func (h *Handler) ensure(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "closureID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sends, err := h.service.EnsureSends(r.Context(), id)
	if err != nil {
		h.fail(w, "ensure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sends)
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	h.withSend(w, r, "resend", h.service.Resend)
}

func (h *Handler) markSent(w http.ResponseWriter, r *http.Request) {
	h.withSend(w, r, "mark sent", h.service.MarkSent)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) notes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.withSend(w, r, "notes", func(ctx context.Context, id int64) (Send, error) {
		return h.service.AddNote(ctx, id, req.Notes)
	})
}

func (h *Handler) withSend(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (Send, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	send, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, send)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("documents "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
