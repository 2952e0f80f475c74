package pricing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/platform/cache"
	"github.com/marmitas/backoffice/internal/shared"
)

// Service owns the load/save boundary of the price table.
type Service struct {
	repo   Repository
	cache  *cache.JSONCache
	logger *slog.Logger
}

// NewService constructs a pricing Service. cache may be nil.
func NewService(repo Repository, c *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// Prices returns the saved table, or the defaults when none was saved.
func (s *Service) Prices(ctx context.Context) (PriceTable, error) {
	key, err := s.cache.Key(ctx, pricesKey)
	if err != nil {
		s.logger.Warn("pricing cache key", slog.Any("error", err))
		return s.loadFromRepo(ctx)
	}
	var table PriceTable
	if err := s.cache.FetchJSON(ctx, key, &table, func(ctx context.Context) (any, error) {
		return s.loadFromRepo(ctx)
	}); err != nil {
		return PriceTable{}, err
	}
	return table, nil
}

func (s *Service) loadFromRepo(ctx context.Context) (PriceTable, error) {
	table, err := s.repo.LoadPrices(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return DefaultPriceTable(), nil
	}
	return table, err
}

// SavePrices validates and persists a new table.
func (s *Service) SavePrices(ctx context.Context, table PriceTable) (PriceTable, error) {
	if err := table.Validate(); err != nil {
		return PriceTable{}, err
	}
	if err := s.repo.SavePrices(ctx, table); err != nil {
		return PriceTable{}, err
	}
	s.invalidate(ctx)
	return table, nil
}

// ResetPrices drops the saved table so the defaults apply again.
func (s *Service) ResetPrices(ctx context.Context) (PriceTable, error) {
	if err := s.repo.DeletePrices(ctx); err != nil {
		return PriceTable{}, err
	}
	s.invalidate(ctx)
	return DefaultPriceTable(), nil
}

// Quote prices an order against the current table.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Breakdown, error) {
	size, err := ParseSize(in.Size)
	if err != nil {
		return Breakdown{}, err
	}
	table, err := s.Prices(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	return ComputeOrderTotal(size, in.Quantity, in.Extras, in.DiscountPercent, table)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("pricing cache bump", slog.Any("error", err))
	}
}

// QuoteInput is a live price preview request.
type QuoteInput struct {
	Size            string          `json:"size"`
	Quantity        int             `json:"quantity"`
	Extras          []ExtraItem     `json:"extras"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}
