package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmitas/backoffice/internal/shared"
)

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return Result{}, fmt.Errorf("%w: from must not be after to", shared.ErrValidation)
	}
	filters = filters.normalized()
	filters.Entity = strings.TrimSpace(filters.Entity)
	filters.EntityID = strings.TrimSpace(filters.EntityID)
	filters.Action = strings.TrimSpace(filters.Action)

	entries, err := s.repo.Window(ctx, filters, filters.PageSize+1, filters.offset())
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > filters.PageSize
	if hasNext {
		entries = entries[:filters.PageSize]
	}
	if entries == nil {
		entries = []Entry{}
	}
	paging := PagingInfo{Page: filters.Page, PageSize: filters.PageSize, HasNext: hasNext}
	if filters.Page > 1 {
		paging.PrevPage = filters.Page - 1
	}
	if hasNext {
		paging.NextPage = filters.Page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}
