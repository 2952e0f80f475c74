package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marmitas/backoffice/internal/audit"
	"github.com/marmitas/backoffice/internal/auth"
	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/documents"
	"github.com/marmitas/backoffice/internal/observability"
	"github.com/marmitas/backoffice/internal/platform/httpx"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/reports"
	"github.com/marmitas/backoffice/internal/settings"
	"github.com/marmitas/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	CompaniesHandler   *companies.Handler
	PricingHandler     *pricing.Handler
	ConsumptionHandler *consumption.Handler
	ClosingHandler     *closing.Handler
	DocumentsHandler   *documents.Handler
	ReportsHandler     *reports.Handler
	SettingsHandler    *settings.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the back office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var loadSession func(http.Handler) http.Handler
	if params.AuthHandler != nil {
		loadSession = params.AuthHandler.LoadSession
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		LoadSession: loadSession,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.CompaniesHandler != nil {
		params.CompaniesHandler.MountRoutes(r)
	}
	if params.PricingHandler != nil {
		params.PricingHandler.MountRoutes(r)
	}
	if params.ConsumptionHandler != nil {
		params.ConsumptionHandler.MountRoutes(r)
	}
	if params.ClosingHandler != nil {
		params.ClosingHandler.MountRoutes(r)
	}
	if params.DocumentsHandler != nil {
		params.DocumentsHandler.MountRoutes(r)
	}
	if params.ReportsHandler != nil {
		params.ReportsHandler.MountRoutes(r)
	}
	if params.SettingsHandler != nil {
		params.SettingsHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})

	return r
}
