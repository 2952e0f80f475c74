package companies

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
)

type companyService interface {
	List(ctx context.Context, filter Filter) ([]Company, error)
	Get(ctx context.Context, id int64) (Company, error)
	Create(ctx context.Context, in Input) (Company, error)
	Update(ctx context.Context, id int64, in Input) (Company, error)
	ToggleActive(ctx context.Context, id int64) (Company, error)
	Delete(ctx context.Context, id int64) (DeleteResult, error)
}

// Handler wires company endpoints.
type Handler struct {
	logger  *slog.Logger
	service companyService
	rbac    rbac.Middleware
}

// NewHandler constructs a company Handler.
func NewHandler(logger *slog.Logger, service companyService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers company routes. Reads are open to operators, writes need admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(rbac.RoleOperator))
			r.Get("/", h.list)
			r.Get("/{id}", h.show)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Post("/{id}/toggle", h.toggle)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Search: q.Get("search"), Status: StatusFilter(q.Get("status"))}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	if items == nil {
		items = []Company{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.ToggleActive(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, "delete", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("companies "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
