package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	rateLimit        = 30
	rateWindow       = time.Minute
)

type timelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
}

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service timelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs an audit Handler.
func NewHandler(logger *slog.Logger, service timelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers /audit for admins, rate limited per user.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "audit timeline rate limit exceeded")
		}),
	)
	r.Route("/audit", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
		r.Use(limiter)
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// parseFilters reads from/to as inclusive dates; to defaults to today and
// from to a week before it.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	toDay := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, invalid("to")
		}
		toDay = t
	}
	fromDay := toDay.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, invalid("from")
		}
		fromDay = t
	}
	if fromDay.After(toDay) || toDay.Sub(fromDay) > maxDateRange {
		return TimelineFilters{}, invalid("range")
	}

	page, err := httpx.IntQuery(r, "page", 1)
	if err != nil || page <= 0 {
		return TimelineFilters{}, invalid("page")
	}
	pageSize, err := httpx.IntQuery(r, "page_size", defaultPageSize)
	if err != nil || pageSize <= 0 {
		return TimelineFilters{}, invalid("page_size")
	}

	var actorID int64
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		actorID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || actorID <= 0 {
			return TimelineFilters{}, invalid("actor_id")
		}
	}

	return TimelineFilters{
		From:     fromDay,
		To:       toDay.AddDate(0, 0, 1),
		ActorID:  actorID,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func invalid(field string) error {
	return fmt.Errorf("%w: invalid %s", shared.ErrValidation, field)
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.UserID > 0 {
		return "user:" + strconv.FormatInt(sess.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
