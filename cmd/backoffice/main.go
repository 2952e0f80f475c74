package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marmitas/backoffice/internal/app"
	"github.com/marmitas/backoffice/internal/audit"
	"github.com/marmitas/backoffice/internal/auth"
	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/documents"
	"github.com/marmitas/backoffice/internal/observability"
	"github.com/marmitas/backoffice/internal/platform/cache"
	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/reports"
	"github.com/marmitas/backoffice/internal/settings"
	"github.com/marmitas/backoffice/internal/shared"
	"github.com/marmitas/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "backoffice")

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authService := auth.NewService(auth.NewRepository(pool), logger)
	if cfg.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Error("bootstrap admin", slog.Any("error", err))
			os.Exit(1)
		}
	}

	priceCache := cache.NewJSONCache(redisClient, "pricing", cfg.PriceCacheTTL)
	reportCache := cache.NewJSONCache(redisClient, "reports", cfg.ReportCacheTTL)

	settingsCache := cache.NewJSONCache(redisClient, "settings", cfg.SettingsCacheTTL)

	companyService := companies.NewService(companies.NewRepository(pool), logger).WithCaches(reportCache)
	settingsService := settings.NewService(settings.NewRepository(pool), settingsCache, logger)
	pricingService := pricing.NewService(pricing.NewRepository(pool), priceCache, logger)
	consumptionService := consumption.NewService(
		consumption.NewRepository(pool),
		companyService,
		pricingService,
		logger,
		consumption.LogObserver{Logger: logger, Caches: []consumption.Invalidator{reportCache}},
	)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	sender := delivery.NewSender(
		delivery.NewComposer(delivery.ComposerConfig{
			BusinessName: cfg.BusinessName,
			PixKey:       cfg.PixKey,
			DueDay:       cfg.PaymentDueDay,
			Source:       settingsService,
		}),
		jobs.NewDispatcher(asynqClient, logger),
		metrics,
		logger,
	)

	closureRepo := closing.NewRepository(pool)
	documentService := documents.NewService(documents.NewRepository(pool), closureRepo, companyService, sender, logger)
	closingService := closing.NewService(closing.Deps{
		Repo:        closureRepo,
		Companies:   companyService,
		Records:     consumptionService,
		Sender:      sender,
		Payments:    closing.OperatorConfirmation{},
		Sends:       documentService,
		Audit:       shared.NewAuditLogger(pool),
		Locks:       shared.NewRedisLocker(redisClient),
		Metrics:     metrics,
		Logger:      logger,
		Concurrency: cfg.GenerateConcurrency,
	})
	reportService := reports.NewService(consumptionService, companyService, closingService, reportCache, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, rbacMiddleware),
		CompaniesHandler:   companies.NewHandler(logger, companyService, rbacMiddleware),
		PricingHandler:     pricing.NewHandler(logger, pricingService, rbacMiddleware),
		ConsumptionHandler: consumption.NewHandler(logger, consumptionService, rbacMiddleware).WithIdempotency(shared.NewIdempotencyStore(pool)),
		ClosingHandler:     closing.NewHandler(logger, closingService, rbacMiddleware),
		DocumentsHandler:   documents.NewHandler(logger, documentService, rbacMiddleware),
		ReportsHandler:     reports.NewHandler(logger, reportService, rbacMiddleware),
		SettingsHandler:    settings.NewHandler(logger, settingsService, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
