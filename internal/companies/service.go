package companies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Invalidator drops cached data that embeds company details.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements company management.
type Service struct {
	repo   Repository
	logger *slog.Logger
	caches []Invalidator
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// WithCaches registers caches bumped after every company write.
func (s *Service) WithCaches(caches ...Invalidator) *Service {
	s.caches = append(s.caches, caches...)
	return s
}

func (s *Service) invalidate(ctx context.Context) {
	for _, c := range s.caches {
		if err := c.Bump(ctx); err != nil {
			s.logger.Warn("company cache invalidation", slog.Any("error", err))
		}
	}
}

// List returns companies matching filter ordered by name.
func (s *Service) List(ctx context.Context, filter Filter) ([]Company, error) {
	switch filter.Status {
	case "", StatusAll, StatusActive, StatusInactive:
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// ListActive returns every active company ordered by id.
func (s *Service) ListActive(ctx context.Context) ([]Company, error) {
	return s.repo.ListActive(ctx)
}

// Get loads a single company.
func (s *Service) Get(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, fmt.Errorf("%w: invalid company id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new company. New companies are active unless stated otherwise.
func (s *Service) Create(ctx context.Context, in Input) (Company, error) {
	c, err := fromInput(in)
	if err != nil {
		return Company{}, err
	}
	c.Active = in.Active == nil || *in.Active
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Company{}, err
	}
	s.logger.Info("company created", slog.Int64("company_id", created.ID), slog.String("name", created.Name))
	s.invalidate(ctx)
	return created, nil
}

// Update replaces the editable fields of a company.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Company, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Company{}, err
	}
	c, err := fromInput(in)
	if err != nil {
		return Company{}, err
	}
	c.ID = current.ID
	c.Active = current.Active
	if in.Active != nil {
		c.Active = *in.Active
	}
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Company{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// ToggleActive flips the active flag.
func (s *Service) ToggleActive(ctx context.Context, id int64) (Company, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Company{}, err
	}
	toggled, err := s.repo.SetActive(ctx, id, !current.Active)
	if err != nil {
		return Company{}, err
	}
	s.invalidate(ctx)
	return toggled, nil
}

// Delete removes a company. Companies with consumption or closure history
// are deactivated instead so their records stay consistent.
func (s *Service) Delete(ctx context.Context, id int64) (DeleteResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return DeleteResult{}, err
	}
	history, err := s.repo.HasHistory(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if history {
		if _, err := s.repo.SetActive(ctx, id, false); err != nil {
			return DeleteResult{}, err
		}
		s.logger.Info("company deactivated instead of deleted", slog.Int64("company_id", id))
		s.invalidate(ctx)
		return DeleteResult{Deactivated: true}, nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return DeleteResult{}, err
	}
	s.logger.Info("company deleted", slog.Int64("company_id", id))
	s.invalidate(ctx)
	return DeleteResult{Deleted: true}, nil
}

func fromInput(in Input) (Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Responsible = strings.TrimSpace(in.Responsible)
	in.Email = strings.TrimSpace(in.Email)
	if err := shared.ValidateStruct(in); err != nil {
		return Company{}, err
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(hundred) {
		return Company{}, fmt.Errorf("%w: discount_percent must be between 0 and 100", shared.ErrValidation)
	}
	return Company{
		Name:            in.Name,
		TaxID:           strings.TrimSpace(in.TaxID),
		Address:         strings.TrimSpace(in.Address),
		Responsible:     in.Responsible,
		Contact:         strings.TrimSpace(in.Contact),
		Email:           in.Email,
		PaymentMethod:   in.PaymentMethod,
		DiscountPercent: in.DiscountPercent,
	}, nil
}
