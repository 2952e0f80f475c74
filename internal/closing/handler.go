package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

type closingService interface {
	GenerateClosures(ctx context.Context, month, year int) (GenerateResult, error)
	List(ctx context.Context, month, year int) ([]Closure, error)
	Get(ctx context.Context, id int64) (Closure, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (Closure, error)
	Override(ctx context.Context, id int64, in OverrideInput) (Closure, error)
	Delete(ctx context.Context, id, actorID int64) error
	SendReport(ctx context.Context, id, actorID int64) (Closure, error)
	QueueInvoice(ctx context.Context, id, actorID int64) (Closure, error)
	SendInvoice(ctx context.Context, id, actorID int64) (Closure, error)
	ConfirmPayment(ctx context.Context, id, actorID int64) (Closure, error)
}

// Handler wires closure endpoints.
type Handler struct {
	logger  *slog.Logger
	service closingService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs a closure Handler.
func NewHandler(logger *slog.Logger, service closingService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers closure routes for managers and above.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/closures", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleManager))
		r.Get("/", h.list)
		r.Post("/generate", h.generate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Patch("/", h.patch)
			r.Delete("/", h.delete)
			r.Post("/report", h.transition(closingService.SendReport))
			r.Post("/invoice-queue", h.transition(closingService.QueueInvoice))
			r.Post("/invoice", h.transition(closingService.SendInvoice))
			r.Post("/payment", h.transition(closingService.ConfirmPayment))
		})
	})
}

type closureView struct {
	Closure
	TotalMeals int      `json:"total_meals"`
	Stage      int      `json:"stage"`
	IsError    bool     `json:"is_error"`
	Actions    []Action `json:"actions"`
}

func newClosureView(c Closure) closureView {
	actions := AvailableActions(c.Status)
	if actions == nil {
		actions = []Action{}
	}
	return closureView{Closure: c, TotalMeals: c.TotalMeals(), Stage: c.Status.Stage(), IsError: c.Status.IsError(), Actions: actions}
}

type listResponse struct {
	Month    int           `json:"month"`
	Year     int           `json:"year"`
	Closures []closureView `json:"closures"`
	Stats    Stats         `json:"stats"`
}

func (h *Handler) monthYear(r *http.Request) (int, int, error) {
	now := h.now()
	month, err := httpx.IntQuery(r, "month", int(now.Month()))
	if err != nil {
		return 0, 0, err
	}
	year, err := httpx.IntQuery(r, "year", now.Year())
	if err != nil {
		return 0, 0, err
	}
	return month, year, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	month, year, err := h.monthYear(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	closures, err := h.service.List(r.Context(), month, year)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	views := make([]closureView, 0, len(closures))
	for _, c := range closures {
		views = append(views, newClosureView(c))
	}
	httpx.JSON(w, http.StatusOK, listResponse{Month: month, Year: year, Closures: views, Stats: Summarize(closures)})
}

type generateRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.GenerateClosures(r.Context(), req.Month, req.Year)
	if err != nil {
		h.fail(w, "generate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
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
	httpx.JSON(w, http.StatusOK, newClosureView(c))
}

type patchRequest struct {
	Notes    *string        `json:"notes"`
	Override *OverrideInput `json:"override"`
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req patchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Notes == nil && req.Override == nil {
		httpx.RespondError(w, fmt.Errorf("%w: nothing to update", shared.ErrValidation))
		return
	}
	var c Closure
	if req.Notes != nil {
		if c, err = h.service.UpdateNotes(r.Context(), id, *req.Notes); err != nil {
			h.fail(w, "notes", err)
			return
		}
	}
	if req.Override != nil {
		in := *req.Override
		in.ActorID = shared.ActorID(r.Context())
		if c, err = h.service.Override(r.Context(), id, in); err != nil {
			h.fail(w, "override", err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, newClosureView(c))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		h.fail(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(op func(closingService, context.Context, int64, int64) (Closure, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		c, err := op(h.service, r.Context(), id, shared.ActorID(r.Context()))
		if err != nil {
			h.fail(w, "transition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, newClosureView(c))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("closures "+op, slog.Any("error", err))
	}
	if errors.Is(err, ErrInvalidTransition) {
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		return
	}
	httpx.RespondError(w, err)
}
