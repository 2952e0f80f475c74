package consumption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

type recordService interface {
	CreateRecord(ctx context.Context, in CreateInput) (Record, error)
	DeleteRecord(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter) ([]Record, error)
	Stats(ctx context.Context, filter Filter) (DailyStats, error)
}

type idempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyModule = "consumption"
)

// Handler wires consumption endpoints.
type Handler struct {
	logger  *slog.Logger
	service recordService
	rbac    rbac.Middleware
	guard   idempotencyGuard
}

// NewHandler constructs a consumption Handler.
func NewHandler(logger *slog.Logger, service recordService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// WithIdempotency makes POST /consumption honour the Idempotency-Key header:
// a replayed key is rejected with 409 instead of creating a second record.
func (h *Handler) WithIdempotency(guard idempotencyGuard) *Handler {
	h.guard = guard
	return h
}

// MountRoutes registers consumption routes for operators and above.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consumption", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleOperator))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/stats", h.stats)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), filter)
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.guard != nil {
		if err := h.guard.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, "create idempotency", err)
			return
		}
	}
	rec, err := h.service.CreateRecord(r.Context(), in)
	if err != nil {
		if key != "" && h.guard != nil {
			if derr := h.guard.Delete(r.Context(), key, idempotencyModule); derr != nil && h.logger != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, "create", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRecord(r.Context(), id); err != nil {
		h.fail(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error("consumption "+op, slog.Any("error", err))
	}
	if errors.Is(err, ErrCompanyInactive) {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Company Inactive", err.Error())
		return
	}
	httpx.RespondError(w, err)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: invalid date", shared.ErrValidation)
		}
		filter.Date = d
	}
	if raw := q.Get("company_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, fmt.Errorf("%w: invalid company_id", shared.ErrValidation)
		}
		filter.CompanyID = id
	}
	return filter, nil
}
