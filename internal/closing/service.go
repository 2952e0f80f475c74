package closing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/shared"
)

const (
	defaultConcurrency = 4
	generateLockTTL    = 2 * time.Minute
)

// CompanySource lists the companies a closure can belong to.
type CompanySource interface {
	ListActive(ctx context.Context) ([]companies.Company, error)
	Get(ctx context.Context, id int64) (companies.Company, error)
}

// RecordSource loads consumption records.
type RecordSource interface {
	List(ctx context.Context, filter consumption.Filter) ([]consumption.Record, error)
}

// DocumentSender renders and hands off a document for a closure.
type DocumentSender interface {
	Send(ctx context.Context, kind delivery.Kind, summary delivery.Summary) error
}

// PaymentVerifier confirms that a closure was paid.
type PaymentVerifier interface {
	Verify(ctx context.Context, c Closure) error
}

// OperatorConfirmation trusts the operator who pressed the button.
type OperatorConfirmation struct{}

func (OperatorConfirmation) Verify(context.Context, Closure) error { return nil }

// SendCleaner removes document sends that belong to a closure.
type SendCleaner interface {
	DeleteByClosure(ctx context.Context, closureID int64) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker serialises generation runs for the same month across instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Recorder observes aggregate runs.
type Recorder interface {
	ObserveClosuresGenerated(count int)
}

// Deps bundles the collaborators of Service.
type Deps struct {
	Repo        Repository
	Companies   CompanySource
	Records     RecordSource
	Sender      DocumentSender
	Payments    PaymentVerifier
	Sends       SendCleaner
	Audit       AuditRecorder
	Locks       Locker
	Metrics     Recorder
	Logger      *slog.Logger
	Concurrency int
}

// Service runs monthly aggregation and the closure status workflow.
type Service struct {
	repo        Repository
	companies   CompanySource
	records     RecordSource
	sender      DocumentSender
	payments    PaymentVerifier
	sends       SendCleaner
	audit       AuditRecorder
	locks       Locker
	metrics     Recorder
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(d Deps) *Service {
	s := &Service{
		repo:        d.Repo,
		companies:   d.Companies,
		records:     d.Records,
		sender:      d.Sender,
		payments:    d.Payments,
		sends:       d.Sends,
		audit:       d.Audit,
		locks:       d.Locks,
		metrics:     d.Metrics,
		logger:      d.Logger,
		concurrency: d.Concurrency,
		now:         time.Now,
	}
	if s.payments == nil {
		s.payments = OperatorConfirmation{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GenerateClosures aggregates the month's records per active company and
// upserts one closure per company that has records. Lookups run concurrently;
// writes run one at a time in company id order. A failure aborts the run and
// keeps the closures already written. A concurrent run for the same month
// fails with shared.ErrLocked.
func (s *Service) GenerateClosures(ctx context.Context, month, year int) (GenerateResult, error) {
	if err := shared.ValidateMonth(month, year); err != nil {
		return GenerateResult{}, err
	}
	if s.locks != nil {
		release, err := s.locks.TryLock(ctx, shared.ClosureGenerationLockKey(month, year), generateLockTTL)
		if err != nil {
			return GenerateResult{}, err
		}
		defer release()
	}
	start, end := shared.MonthRange(month, year)

	active, err := s.companies.ListActive(ctx)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("closing: list companies: %w", err)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	totals := make([]Totals, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, company := range active {
		g.Go(func() error {
			records, err := s.records.List(gctx, consumption.Filter{CompanyID: company.ID, From: start, To: end})
			if err != nil {
				return fmt.Errorf("closing: records for company %d: %w", company.ID, err)
			}
			totals[i] = AggregateRecords(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GenerateResult{}, err
	}

	today := shared.DateOnly(s.now())
	result := GenerateResult{Closures: []Closure{}}
	for i, company := range active {
		if totals[i].Records == 0 {
			continue
		}
		c, err := s.repo.Upsert(ctx, UpsertInput{
			CompanyID: company.ID,
			Month:     month,
			Year:      year,
			Totals:    totals[i],
			ClosedOn:  today,
		})
		if err != nil {
			return result, err
		}
		result.Closures = append(result.Closures, c)
		result.Count++
	}

	if s.metrics != nil {
		s.metrics.ObserveClosuresGenerated(result.Count)
	}
	s.logger.Info("closures generated",
		slog.Int("month", month),
		slog.Int("year", year),
		slog.Int("companies", len(active)),
		slog.Int("count", result.Count))
	return result, nil
}

// SendReport delivers the monthly consumption report.
func (s *Service) SendReport(ctx context.Context, id, actorID int64) (Closure, error) {
	return s.attempt(ctx, id, actorID, EventReportSent, EventReportFailed, true, s.sendDocument(delivery.KindReport))
}

// SendInvoice delivers the tax invoice.
func (s *Service) SendInvoice(ctx context.Context, id, actorID int64) (Closure, error) {
	return s.attempt(ctx, id, actorID, EventInvoiceSent, EventInvoiceFailed, true, s.sendDocument(delivery.KindTaxInvoice))
}

// ConfirmPayment asks the payment verifier and completes the closure.
func (s *Service) ConfirmPayment(ctx context.Context, id, actorID int64) (Closure, error) {
	return s.attempt(ctx, id, actorID, EventPaymentConfirmed, EventPaymentFailed, false, s.payments.Verify)
}

// QueueInvoice marks that the invoice is being prepared.
func (s *Service) QueueInvoice(ctx context.Context, id, actorID int64) (Closure, error) {
	return s.mark(ctx, id, actorID, EventInvoiceQueued)
}

// RecordBounce stores a delivery the mail worker gave up on after the closure
// step was recorded as sent. A closure that already moved past that step is
// left as it is.
func (s *Service) RecordBounce(ctx context.Context, id int64, kind delivery.Kind, reason string) (Closure, error) {
	var ev Event
	switch kind {
	case delivery.KindReport:
		ev = EventReportBounced
	case delivery.KindTaxInvoice:
		ev = EventInvoiceBounced
	default:
		return Closure{}, fmt.Errorf("%w: closures do not send %q", shared.ErrValidation, kind)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Closure{}, err
	}
	next, err := Next(c.Status, ev)
	if err != nil {
		s.logger.Warn("closure bounce ignored",
			slog.Int64("closure_id", id),
			slog.String("kind", string(kind)),
			slog.String("status", string(c.Status)))
		return c, nil
	}
	updated, err := s.repo.UpdateStatus(ctx, StatusUpdate{ID: c.ID, Status: next, LastError: reason, LastSentAt: c.LastSentAt})
	if err != nil {
		return Closure{}, err
	}
	s.record(ctx, 0, string(ev), c, updated)
	return updated, nil
}

// attempt runs fn and records the outcome as a status. A failing fn is not an
// error for the caller: the failure is stored on the closure and the updated
// closure is returned.
func (s *Service) attempt(ctx context.Context, id, actorID int64, okEv, failEv Event, stampSent bool, fn func(context.Context, Closure) error) (Closure, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Closure{}, err
	}
	success, err := Next(c.Status, okEv)
	if err != nil {
		return Closure{}, err
	}
	failure, err := Next(c.Status, failEv)
	if err != nil {
		return Closure{}, err
	}

	upd := StatusUpdate{ID: c.ID, LastSentAt: c.LastSentAt}
	if attemptErr := fn(ctx, c); attemptErr != nil {
		upd.Status = failure
		upd.LastError = attemptErr.Error()
	} else {
		upd.Status = success
		if stampSent {
			now := s.now()
			upd.LastSentAt = &now
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, upd)
	if err != nil {
		return Closure{}, err
	}
	s.record(ctx, actorID, string(okEv), c, updated)
	return updated, nil
}

func (s *Service) mark(ctx context.Context, id, actorID int64, ev Event) (Closure, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Closure{}, err
	}
	next, err := Next(c.Status, ev)
	if err != nil {
		return Closure{}, err
	}
	updated, err := s.repo.UpdateStatus(ctx, StatusUpdate{ID: c.ID, Status: next, LastError: c.LastError, LastSentAt: c.LastSentAt})
	if err != nil {
		return Closure{}, err
	}
	s.record(ctx, actorID, string(ev), c, updated)
	return updated, nil
}

func (s *Service) sendDocument(kind delivery.Kind) func(context.Context, Closure) error {
	return func(ctx context.Context, c Closure) error {
		summary, err := s.summary(ctx, c)
		if err != nil {
			return err
		}
		return s.sender.Send(ctx, kind, summary)
	}
}

func (s *Service) summary(ctx context.Context, c Closure) (delivery.Summary, error) {
	company, err := s.companies.Get(ctx, c.CompanyID)
	if err != nil {
		return delivery.Summary{}, fmt.Errorf("load company: %w", err)
	}
	return SummaryFor(c, company), nil
}

// SummaryFor builds the delivery summary of a closure.
func SummaryFor(c Closure, company companies.Company) delivery.Summary {
	return delivery.Summary{
		ClosureID:   c.ID,
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Responsible: company.Responsible,
		Email:       company.Email,
		Month:       c.Month,
		Year:        c.Year,
		TotalMeals:  c.TotalMeals(),
		TotalValue:  c.TotalValue,
		ClosedOn:    c.ClosedOn,
	}
}

// Override replaces the totals by hand and leaves an audit trail.
func (s *Service) Override(ctx context.Context, id int64, in OverrideInput) (Closure, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := shared.ValidateStruct(in); err != nil {
		return Closure{}, err
	}
	if in.TotalValue.IsNegative() {
		return Closure{}, fmt.Errorf("%w: total_value must not be negative", shared.ErrValidation)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Closure{}, err
	}
	updated, err := s.repo.Override(ctx, id, in, s.now())
	if err != nil {
		return Closure{}, err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "closure.override",
			Entity:   "closure",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"reason": in.Reason,
				"before": totalsMeta(before.TotalP, before.TotalM, before.TotalG, before.TotalValue),
				"after":  totalsMeta(in.TotalP, in.TotalM, in.TotalG, in.TotalValue),
			},
			At: s.now(),
		})
		if err != nil {
			s.logger.Error("closure override audit", slog.Int64("closure_id", id), slog.Any("error", err))
		}
	}
	return updated, nil
}

func totalsMeta(p, m, g int, value decimal.Decimal) map[string]any {
	return map[string]any{"total_p": p, "total_m": m, "total_g": g, "total_value": value.StringFixed(2)}
}

// UpdateNotes replaces the free-text notes.
func (s *Service) UpdateNotes(ctx context.Context, id int64, notes string) (Closure, error) {
	if len(notes) > 2000 {
		return Closure{}, fmt.Errorf("%w: notes too long", shared.ErrValidation)
	}
	return s.repo.UpdateNotes(ctx, id, strings.TrimSpace(notes))
}

// Get loads one closure.
func (s *Service) Get(ctx context.Context, id int64) (Closure, error) {
	return s.repo.Get(ctx, id)
}

// List returns the closures of a month ordered by company.
func (s *Service) List(ctx context.Context, month, year int) ([]Closure, error) {
	if err := shared.ValidateMonth(month, year); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, month, year)
}

// CountByStatus counts closures of every month in status.
func (s *Service) CountByStatus(ctx context.Context, status Status) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	return s.repo.CountByStatus(ctx, status)
}

// Delete removes the closure's document sends and then the closure.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.sends != nil {
		if err := s.sends.DeleteByClosure(ctx, id); err != nil {
			return fmt.Errorf("closing: delete document sends: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "delete", c, Closure{})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, before, after Closure) {
	attrs := []any{
		slog.Int64("closure_id", before.ID),
		slog.Int64("company_id", before.CompanyID),
		slog.Int64("actor_id", actorID),
		slog.String("action", action),
		slog.String("from", string(before.Status)),
	}
	if after.ID != 0 {
		attrs = append(attrs, slog.String("to", string(after.Status)))
		if after.LastError != "" {
			attrs = append(attrs, slog.String("last_error", after.LastError))
		}
	}
	s.logger.Info("closure transition", attrs...)
}
