package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/shared"
)

const maxNotesLength = 2000

// ClosureSource loads closures.
type ClosureSource interface {
	Get(ctx context.Context, id int64) (closing.Closure, error)
	List(ctx context.Context, month, year int) ([]closing.Closure, error)
}

// CompanyLookup loads the company a document is addressed to.
type CompanyLookup interface {
	Get(ctx context.Context, id int64) (companies.Company, error)
}

// DocumentSender renders and hands off a document.
type DocumentSender interface {
	Send(ctx context.Context, kind delivery.Kind, summary delivery.Summary) error
}

// Service tracks per-closure document sends.
type Service struct {
	repo      Repository
	closures  ClosureSource
	companies CompanyLookup
	sender    DocumentSender
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, closures ClosureSource, companies CompanyLookup, sender DocumentSender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, closures: closures, companies: companies, sender: sender, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsureSends returns the sends of a closure, creating the three pending rows
// on first use.
func (s *Service) EnsureSends(ctx context.Context, closureID int64) ([]Send, error) {
	if _, err := s.closures.Get(ctx, closureID); err != nil {
		return nil, err
	}
	return s.repo.EnsureSends(ctx, closureID)
}

// Resend attempts delivery of one document. A failed delivery is stored on the
// send and is not an error for the caller.
func (s *Service) Resend(ctx context.Context, id int64) (Send, error) {
	send, err := s.repo.Get(ctx, id)
	if err != nil {
		return Send{}, err
	}
	c, err := s.closures.Get(ctx, send.ClosureID)
	if err != nil {
		return Send{}, err
	}
	company, err := s.companies.Get(ctx, c.CompanyID)
	if err != nil {
		return Send{}, fmt.Errorf("documents: load company %d: %w", c.CompanyID, err)
	}

	summary := closing.SummaryFor(c, company)
	summary.SendID = send.ID
	send.Retries++
	if sendErr := s.sender.Send(ctx, send.Kind, summary); sendErr != nil {
		send.Status = SendError
		send.LastError = sendErr.Error()
	} else {
		now := s.now()
		send.Status = SendSent
		send.LastError = ""
		send.SentAt = &now
	}

	saved, err := s.repo.Save(ctx, send)
	if err != nil {
		return Send{}, err
	}
	s.logger.Info("document resend",
		slog.Int64("send_id", saved.ID),
		slog.Int64("closure_id", saved.ClosureID),
		slog.String("kind", string(saved.Kind)),
		slog.String("status", string(saved.Status)),
		slog.Int("retries", saved.Retries))
	return saved, nil
}

// MarkSent records a document as sent outside the system.
func (s *Service) MarkSent(ctx context.Context, id int64) (Send, error) {
	send, err := s.repo.Get(ctx, id)
	if err != nil {
		return Send{}, err
	}
	now := s.now()
	send.Status = SendSent
	send.LastError = ""
	send.SentAt = &now
	return s.repo.Save(ctx, send)
}

// RecordBounce stores a delivery the mail worker gave up on after the send
// was recorded as handed off. Sends in any other state are left alone.
func (s *Service) RecordBounce(ctx context.Context, id int64, reason string) (Send, error) {
	send, err := s.repo.Get(ctx, id)
	if err != nil {
		return Send{}, err
	}
	if send.Status != SendSent {
		s.logger.Warn("document bounce ignored",
			slog.Int64("send_id", id),
			slog.String("status", string(send.Status)))
		return send, nil
	}
	send.Status = SendError
	send.LastError = reason
	saved, err := s.repo.Save(ctx, send)
	if err != nil {
		return Send{}, err
	}
	s.logger.Warn("document bounced",
		slog.Int64("send_id", saved.ID),
		slog.Int64("closure_id", saved.ClosureID),
		slog.String("kind", string(saved.Kind)),
		slog.String("error", reason))
	return saved, nil
}

// AddNote replaces the notes of a send.
func (s *Service) AddNote(ctx context.Context, id int64, text string) (Send, error) {
	if len(text) > maxNotesLength {
		return Send{}, fmt.Errorf("%w: notes too long", shared.ErrValidation)
	}
	return s.repo.UpdateNotes(ctx, id, strings.TrimSpace(text))
}

// DeleteByClosure removes every send of a closure.
func (s *Service) DeleteByClosure(ctx context.Context, closureID int64) error {
	return s.repo.DeleteByClosure(ctx, closureID)
}

// Overview groups the month's sends per closure, creating missing rows. Stats
// count every closure; status keeps only sends in that state and drops
// closures left with none.
func (s *Service) Overview(ctx context.Context, month, year int, status SendStatus) (Overview, error) {
	if err := shared.ValidateMonth(month, year); err != nil {
		return Overview{}, err
	}
	closures, err := s.closures.List(ctx, month, year)
	if err != nil {
		return Overview{}, err
	}
	ids := make([]int64, len(closures))
	for i, c := range closures {
		ids[i] = c.ID
	}
	existing, err := s.repo.ListByClosures(ctx, ids)
	if err != nil {
		return Overview{}, err
	}

	all := make([]Group, 0, len(closures))
	for _, c := range closures {
		sends := existing[c.ID]
		if len(sends) == 0 {
			if sends, err = s.repo.EnsureSends(ctx, c.ID); err != nil {
				return Overview{}, err
			}
		}
		all = append(all, newGroup(c, sends))
	}

	ov := Overview{Month: month, Year: year, Groups: make([]Group, 0, len(all)), Stats: Summarize(all)}
	for _, g := range all {
		if g, ok := g.keepOnly(status); ok {
			ov.Groups = append(ov.Groups, g)
		}
	}
	return ov, nil
}
