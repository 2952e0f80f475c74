package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/platform/cache"
	"github.com/marmitas/backoffice/internal/shared"
)

// RecordSource loads consumption records.
type RecordSource interface {
	List(ctx context.Context, filter consumption.Filter) ([]consumption.Record, error)
}

// CompanySource lists active companies.
type CompanySource interface {
	ListActive(ctx context.Context) ([]companies.Company, error)
}

// ClosureCounter counts closures by status.
type ClosureCounter interface {
	CountByStatus(ctx context.Context, status closing.Status) (int, error)
}

// Service assembles reports through the versioned cache.
type Service struct {
	records   RecordSource
	companies CompanySource
	closures  ClosureCounter
	cache     *cache.JSONCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires report sources with a cache. A nil cache disables caching.
func NewService(records RecordSource, companies CompanySource, closures ClosureCounter, c *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, companies: companies, closures: closures, cache: c, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Overview returns the cached management report for month/year.
func (s *Service) Overview(ctx context.Context, month, year int) (Overview, error) {
	if err := shared.ValidateMonth(month, year); err != nil {
		return Overview{}, err
	}
	key, err := s.cache.Key(ctx, "overview", strconv.Itoa(year), strconv.Itoa(month))
	if err != nil {
		return Overview{}, fmt.Errorf("reports: cache key: %w", err)
	}
	var ov Overview
	err = s.cache.FetchJSON(ctx, key, &ov, func(ctx context.Context) (any, error) {
		fromMonth, fromYear := SeriesStart(month, year)
		from, _ := shared.MonthRange(fromMonth, fromYear)
		_, to := shared.MonthRange(month, year)
		records, err := s.records.List(ctx, consumption.Filter{From: from, To: to})
		if err != nil {
			return nil, fmt.Errorf("reports: records: %w", err)
		}
		active, err := s.companies.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("reports: companies: %w", err)
		}
		s.logger.Debug("report overview computed",
			slog.Int("month", month),
			slog.Int("year", year),
			slog.Int("records", len(records)))
		return BuildOverview(month, year, records, len(active)), nil
	})
	if err != nil {
		return Overview{}, err
	}
	return ov, nil
}

// Dashboard returns the home screen cards for the current day. It reads
// through to the stores.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	today := shared.DateOnly(s.now())
	from, _ := shared.MonthRange(int(today.Month()), today.Year())
	if yesterday := today.AddDate(0, 0, -1); yesterday.Before(from) {
		from = yesterday
	}
	records, err := s.records.List(ctx, consumption.Filter{From: from, To: today.AddDate(0, 0, 1)})
	if err != nil {
		return Dashboard{}, fmt.Errorf("reports: records: %w", err)
	}
	active, err := s.companies.ListActive(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("reports: companies: %w", err)
	}
	pending, err := s.closures.CountByStatus(ctx, closing.StatusPending)
	if err != nil {
		return Dashboard{}, fmt.Errorf("reports: pending closures: %w", err)
	}
	return BuildDashboard(DashboardInput{
		Today:           today,
		Records:         records,
		PendingClosures: pending,
		ActiveCompanies: len(active),
	}), nil
}
