package consumption

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/shared"
)

// CompanyLookup resolves the company a record belongs to.
type CompanyLookup interface {
	Get(ctx context.Context, id int64) (companies.Company, error)
}

// PriceSource provides the current price table.
type PriceSource interface {
	Prices(ctx context.Context) (pricing.PriceTable, error)
}

// Observer is notified after records are created or deleted.
type Observer interface {
	RecordCreated(ctx context.Context, rec Record)
	RecordDeleted(ctx context.Context, rec Record)
}

// Service implements the consumption record manager.
type Service struct {
	repo      Repository
	companies CompanyLookup
	prices    PriceSource
	observers []Observer
	logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, companies CompanyLookup, prices PriceSource, logger *slog.Logger, observers ...Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, companies: companies, prices: prices, observers: observers, logger: logger}
}

// CreateRecord prices and stores a new record for an active company.
func (s *Service) CreateRecord(ctx context.Context, in CreateInput) (Record, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Record{}, err
	}
	date, err := time.Parse(time.DateOnly, in.Date)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid date", shared.ErrValidation)
	}
	size, err := pricing.ParseSize(in.Size)
	if err != nil {
		return Record{}, err
	}

	company, err := s.companies.Get(ctx, in.CompanyID)
	if err != nil {
		return Record{}, err
	}
	if !company.Active {
		return Record{}, fmt.Errorf("%w: %s", ErrCompanyInactive, company.Name)
	}
	table, err := s.prices.Prices(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("consumption: load prices: %w", err)
	}
	breakdown, err := pricing.ComputeOrderTotal(size, in.Quantity, in.Extras, company.DiscountPercent, table)
	if err != nil {
		return Record{}, err
	}

	rec, err := s.repo.Insert(ctx, Record{
		CompanyID:     company.ID,
		CompanyName:   company.Name,
		Responsible:   company.Responsible,
		Date:          date,
		Size:          size,
		Quantity:      in.Quantity,
		Extras:        in.Extras,
		MealsValue:    breakdown.MealsSubtotal,
		ExtrasValue:   breakdown.ExtrasSubtotal,
		DiscountValue: breakdown.DiscountAmount,
		TotalPrice:    breakdown.GrandTotal,
		Notes:         strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return Record{}, err
	}
	for _, o := range s.observers {
		o.RecordCreated(ctx, rec)
	}
	return rec, nil
}

// DeleteRecord removes a record. Missing ids yield shared.ErrNotFound.
func (s *Service) DeleteRecord(ctx context.Context, id int64) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, o := range s.observers {
		o.RecordDeleted(ctx, rec)
	}
	return nil
}

// List returns records newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, error) {
	return s.repo.List(ctx, filter)
}

// Stats summarises the records matching filter.
func (s *Service) Stats(ctx context.Context, filter Filter) (DailyStats, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return DailyStats{}, err
	}
	return Summarize(records), nil
}
