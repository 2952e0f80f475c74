package closing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type closureKey struct {
	company     int64
	month, year int
}

type mockRepository struct {
	closures    map[int64]*Closure
	byKey       map[closureKey]int64
	nextID      int64
	upserts     []int64
	upsertError map[int64]error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		closures:    make(map[int64]*Closure),
		byKey:       make(map[closureKey]int64),
		nextID:      1,
		upsertError: make(map[int64]error),
	}
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Closure, error) {
	c, ok := m.closures[id]
	if !ok {
		return Closure{}, shared.ErrNotFound
	}
	return *c, nil
}

func (m *mockRepository) List(ctx context.Context, month, year int) ([]Closure, error) {
	var out []Closure
	for _, c := range m.closures {
		if c.Month == month && c.Year == year {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (m *mockRepository) Upsert(ctx context.Context, in UpsertInput) (Closure, error) {
	if err := m.upsertError[in.CompanyID]; err != nil {
		return Closure{}, err
	}
	m.upserts = append(m.upserts, in.CompanyID)
	key := closureKey{in.CompanyID, in.Month, in.Year}
	if id, ok := m.byKey[key]; ok {
		c := m.closures[id]
		c.TotalP, c.TotalM, c.TotalG, c.TotalValue = in.Totals.TotalP, in.Totals.TotalM, in.Totals.TotalG, in.Totals.Value
		c.Overridden, c.OverriddenBy, c.OverriddenAt, c.OverrideReason = false, nil, nil, ""
		return *c, nil
	}
	c := &Closure{
		ID:         m.nextID,
		CompanyID:  in.CompanyID,
		Month:      in.Month,
		Year:       in.Year,
		TotalP:     in.Totals.TotalP,
		TotalM:     in.Totals.TotalM,
		TotalG:     in.Totals.TotalG,
		TotalValue: in.Totals.Value,
		Status:     StatusPending,
		ClosedOn:   in.ClosedOn,
	}
	m.closures[c.ID] = c
	m.byKey[key] = c.ID
	m.nextID++
	return *c, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, upd StatusUpdate) (Closure, error) {
	if m.updateError != nil {
		return Closure{}, m.updateError
	}
	c, ok := m.closures[upd.ID]
	if !ok {
		return Closure{}, shared.ErrNotFound
	}
	c.Status, c.LastError, c.LastSentAt = upd.Status, upd.LastError, upd.LastSentAt
	return *c, nil
}

func (m *mockRepository) UpdateNotes(ctx context.Context, id int64, notes string) (Closure, error) {
	c, ok := m.closures[id]
	if !ok {
		return Closure{}, shared.ErrNotFound
	}
	c.Notes = notes
	return *c, nil
}

func (m *mockRepository) Override(ctx context.Context, id int64, in OverrideInput, at time.Time) (Closure, error) {
	c, ok := m.closures[id]
	if !ok {
		return Closure{}, shared.ErrNotFound
	}
	actor := in.ActorID
	c.TotalP, c.TotalM, c.TotalG, c.TotalValue = in.TotalP, in.TotalM, in.TotalG, in.TotalValue
	c.Overridden, c.OverriddenBy, c.OverriddenAt, c.OverrideReason = true, &actor, &at, in.Reason
	return *c, nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	c, ok := m.closures[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(m.byKey, closureKey{c.CompanyID, c.Month, c.Year})
	delete(m.closures, id)
	return nil
}

func (m *mockRepository) CountByStatus(ctx context.Context, status Status) (int, error) {
	n := 0
	for _, c := range m.closures {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

type mockCompanies struct {
	list      []companies.Company
	listError error
}

func (m *mockCompanies) ListActive(ctx context.Context) ([]companies.Company, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	var out []companies.Company
	for _, c := range m.list {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCompanies) Get(ctx context.Context, id int64) (companies.Company, error) {
	for _, c := range m.list {
		if c.ID == id {
			return c, nil
		}
	}
	return companies.Company{}, shared.ErrNotFound
}

type mockRecords struct {
	mu        sync.Mutex
	records   []consumption.Record
	failFor   int64
	filters   []consumption.Filter
	listError error
}

func (m *mockRecords) List(ctx context.Context, filter consumption.Filter) ([]consumption.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.failFor != 0 && filter.CompanyID == m.failFor {
		return nil, m.listError
	}
	var out []consumption.Record
	for _, r := range m.records {
		if r.CompanyID != filter.CompanyID {
			continue
		}
		if r.Date.Before(filter.From) || !r.Date.Before(filter.To) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubSender struct {
	err   error
	sent  []delivery.Kind
	email []string
}

func (s *stubSender) Send(ctx context.Context, kind delivery.Kind, summary delivery.Summary) error {
	s.sent = append(s.sent, kind)
	s.email = append(s.email, summary.Email)
	return s.err
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(context.Context, Closure) error { return v.err }

type mockCleaner struct {
	deleted []int64
	err     error
}

func (m *mockCleaner) DeleteByClosure(ctx context.Context, closureID int64) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, closureID)
	return nil
}

type mockAudit struct{ logs []shared.AuditLog }

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type generatedCounter struct{ total int }

func (g *generatedCounter) ObserveClosuresGenerated(count int) { g.total += count }

// ============================================================================
// FIXTURES
// ============================================================================

var fixedNow = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      *mockRepository
	companies *mockCompanies
	records   *mockRecords
	sender    *stubSender
	cleaner   *mockCleaner
	audit     *mockAudit
	metrics   *generatedCounter
}

func newFixture() *fixture {
	f := &fixture{
		repo: newMockRepository(),
		companies: &mockCompanies{list: []companies.Company{
			{ID: 1, Name: "Alfa", Responsible: "Maria", Email: "maria@alfa.com", Active: true},
			{ID: 2, Name: "Beta", Responsible: "João", Email: "joao@beta.com", Active: true},
			{ID: 3, Name: "Gama", Responsible: "Ana", Active: false},
		}},
		records: &mockRecords{},
		sender:  &stubSender{},
		cleaner: &mockCleaner{},
		audit:   &mockAudit{},
		metrics: &generatedCounter{},
	}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Companies: f.companies,
		Records:   f.records,
		Sender:    f.sender,
		Sends:     f.cleaner,
		Audit:     f.audit,
		Metrics:   f.metrics,
	})
	f.svc.WithNow(func() time.Time { return fixedNow })
	return f
}

func record(company int64, date string, size pricing.Size, qty int, total string) consumption.Record {
	d, _ := time.Parse(time.DateOnly, date)
	return consumption.Record{CompanyID: company, Date: d, Size: size, Quantity: qty, TotalPrice: decimal.RequireFromString(total)}
}

func (f *fixture) seedClosure(status Status) Closure {
	c := &Closure{ID: f.repo.nextID, CompanyID: 1, Month: 3, Year: 2024, TotalP: 2, TotalG: 1, TotalValue: decimal.RequireFromString("52"), Status: status}
	f.repo.closures[c.ID] = c
	f.repo.byKey[closureKey{c.CompanyID, c.Month, c.Year}] = c.ID
	f.repo.nextID++
	return *c
}

// ============================================================================
// AGGREGATOR
// ============================================================================

func TestGenerateClosuresSkipsCompaniesWithoutRecords(t *testing.T) {
	f := newFixture()
	f.records.records = []consumption.Record{
		record(1, "2024-03-04", pricing.SizeSmall, 2, "30.00"),
		record(1, "2024-03-20", pricing.SizeLarge, 1, "22.00"),
		record(1, "2024-04-01", pricing.SizeLarge, 9, "198.00"),
	}

	res, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	require.NoError(t, err)

	require.Equal(t, 1, res.Count)
	c := res.Closures[0]
	assert.Equal(t, int64(1), c.CompanyID)
	assert.Equal(t, 2, c.TotalP)
	assert.Equal(t, 0, c.TotalM)
	assert.Equal(t, 1, c.TotalG)
	assert.Equal(t, "52.00", c.TotalValue.StringFixed(2))
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), c.ClosedOn)
	assert.Len(t, f.repo.closures, 1)
	assert.Equal(t, 1, f.metrics.total)
}

func TestGenerateClosuresIsIdempotent(t *testing.T) {
	f := newFixture()
	f.records.records = []consumption.Record{
		record(1, "2024-03-04", pricing.SizeSmall, 2, "30.00"),
		record(2, "2024-03-05", pricing.SizeMedium, 4, "72.00"),
	}
	ctx := context.Background()

	first, err := f.svc.GenerateClosures(ctx, 3, 2024)
	require.NoError(t, err)
	second, err := f.svc.GenerateClosures(ctx, 3, 2024)
	require.NoError(t, err)

	require.Equal(t, first.Count, second.Count)
	for i := range first.Closures {
		assert.Equal(t, first.Closures[i].ID, second.Closures[i].ID)
		assert.Equal(t, first.Closures[i].TotalMeals(), second.Closures[i].TotalMeals())
		assert.True(t, first.Closures[i].TotalValue.Equal(second.Closures[i].TotalValue))
	}
	assert.Len(t, f.repo.closures, 2)
}

func TestGenerateClosuresPreservesStatusAndClearsOverride(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.records.records = []consumption.Record{record(1, "2024-03-04", pricing.SizeSmall, 2, "30.00")}

	res, err := f.svc.GenerateClosures(ctx, 3, 2024)
	require.NoError(t, err)
	id := res.Closures[0].ID

	_, err = f.svc.SendReport(ctx, id, 9)
	require.NoError(t, err)
	_, err = f.svc.Override(ctx, id, OverrideInput{TotalP: 5, TotalValue: decimal.NewFromInt(70), Reason: "pedido extra por telefone", ActorID: 9})
	require.NoError(t, err)

	f.records.records = append(f.records.records, record(1, "2024-03-10", pricing.SizeSmall, 1, "15.00"))
	res, err = f.svc.GenerateClosures(ctx, 3, 2024)
	require.NoError(t, err)

	c := res.Closures[0]
	assert.Equal(t, StatusReportSent, c.Status)
	assert.Equal(t, 3, c.TotalP)
	assert.Equal(t, "45.00", c.TotalValue.StringFixed(2))
	assert.False(t, c.Overridden)
}

func TestGenerateClosuresDecemberRollsIntoNextYear(t *testing.T) {
	f := newFixture()
	f.records.records = []consumption.Record{
		record(1, "2024-12-31", pricing.SizeMedium, 1, "18.00"),
		record(1, "2025-01-01", pricing.SizeMedium, 1, "18.00"),
	}

	res, err := f.svc.GenerateClosures(context.Background(), 12, 2024)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, 1, res.Closures[0].TotalM)

	for _, filter := range f.records.filters {
		assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), filter.From)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), filter.To)
	}
}

func TestGenerateClosuresValidation(t *testing.T) {
	f := newFixture()
	for _, tc := range []struct{ month, year int }{{0, 2024}, {13, 2024}, {5, 1990}} {
		_, err := f.svc.GenerateClosures(context.Background(), tc.month, tc.year)
		assert.ErrorIs(t, err, shared.ErrValidation, "%d/%d", tc.month, tc.year)
	}
	assert.Empty(t, f.records.filters)
}

func TestGenerateClosuresLookupFailureWritesNothing(t *testing.T) {
	f := newFixture()
	boom := errors.New("connection reset")
	f.records.records = []consumption.Record{record(1, "2024-03-04", pricing.SizeSmall, 1, "15.00")}
	f.records.failFor = 2
	f.records.listError = boom

	_, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.repo.upserts)
}

func TestGenerateClosuresWriteFailureKeepsEarlierUpserts(t *testing.T) {
	f := newFixture()
	boom := errors.New("disk full")
	f.records.records = []consumption.Record{
		record(1, "2024-03-04", pricing.SizeSmall, 1, "15.00"),
		record(2, "2024-03-04", pricing.SizeSmall, 1, "15.00"),
	}
	f.repo.upsertError[2] = boom

	res, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []int64{1}, f.repo.upserts)
	assert.Len(t, f.repo.closures, 1)
}

func TestGenerateClosuresCompanyListFailure(t *testing.T) {
	f := newFixture()
	f.companies.listError = errors.New("timeout")
	_, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	assert.Error(t, err)
}

func TestGenerateClosuresUpsertsInCompanyOrder(t *testing.T) {
	f := newFixture()
	f.companies.list = nil
	for id := int64(20); id >= 1; id-- {
		f.companies.list = append(f.companies.list, companies.Company{ID: id, Name: fmt.Sprintf("C%d", id), Active: true})
		f.records.records = append(f.records.records, record(id, "2024-03-15", pricing.SizeSmall, 1, "15.00"))
	}

	res, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Count)
	assert.True(t, sort.SliceIsSorted(f.repo.upserts, func(i, j int) bool { return f.repo.upserts[i] < f.repo.upserts[j] }))
}

type stubLocker struct {
	held     map[string]bool
	released []string
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, shared.ErrLocked
	}
	l.held[key] = true
	return func() {
		delete(l.held, key)
		l.released = append(l.released, key)
	}, nil
}

func TestGenerateClosuresHoldsMonthLock(t *testing.T) {
	f := newFixture()
	locks := &stubLocker{held: map[string]bool{}}
	f.svc.locks = locks
	f.records.records = []consumption.Record{record(1, "2024-03-04", pricing.SizeSmall, 1, "15.00")}

	_, err := f.svc.GenerateClosures(context.Background(), 3, 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.ClosureGenerationLockKey(3, 2024)}, locks.released)

	locks.held[shared.ClosureGenerationLockKey(3, 2024)] = true
	_, err = f.svc.GenerateClosures(context.Background(), 3, 2024)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, f.repo.upserts, 1)

	_, err = f.svc.GenerateClosures(context.Background(), 4, 2024)
	assert.NoError(t, err)
}

// ============================================================================
// STATUS WORKFLOW
// ============================================================================

func TestSendReportSuccess(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)

	got, err := f.svc.SendReport(context.Background(), c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusReportSent, got.Status)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastSentAt)
	assert.Equal(t, fixedNow, *got.LastSentAt)
	assert.Equal(t, []delivery.Kind{delivery.KindReport}, f.sender.sent)
	assert.Equal(t, []string{"maria@alfa.com"}, f.sender.email)
}

func TestSendReportFailureIsRecordedThenRetried(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	ctx := context.Background()

	f.sender.err = delivery.ErrNoRecipient
	got, err := f.svc.SendReport(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusErrorReport, got.Status)
	assert.Equal(t, delivery.ErrNoRecipient.Error(), got.LastError)
	assert.Nil(t, got.LastSentAt)

	f.sender.err = nil
	got, err = f.svc.SendReport(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusReportSent, got.Status)
	assert.Empty(t, got.LastError)
}

func TestSendInvoiceFromInvalidStatus(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)

	_, err := f.svc.SendInvoice(context.Background(), c.ID, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, StatusPending, f.repo.closures[c.ID].Status)
}

func TestFullWorkflowToCompleted(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	ctx := context.Background()

	got, err := f.svc.SendReport(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusReportSent, got.Status)

	got, err = f.svc.QueueInvoice(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusInvoicePending, got.Status)

	f.sender.err = errors.New("smtp timeout")
	got, err = f.svc.SendInvoice(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusErrorInvoice, got.Status)
	assert.Equal(t, "smtp timeout", got.LastError)

	f.sender.err = nil
	got, err = f.svc.SendInvoice(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusInvoiceSent, got.Status)
	assert.Empty(t, got.LastError)

	got, err = f.svc.ConfirmPayment(ctx, c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []delivery.Kind{delivery.KindReport, delivery.KindTaxInvoice, delivery.KindTaxInvoice}, f.sender.sent)

	_, err = f.svc.SendReport(ctx, c.ID, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmPaymentFailure(t *testing.T) {
	f := newFixture()
	f.svc.payments = stubVerifier{err: errors.New("boleto not compensated")}
	c := f.seedClosure(StatusInvoiceSent)

	got, err := f.svc.ConfirmPayment(context.Background(), c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusErrorPayment, got.Status)
	assert.Equal(t, "boleto not compensated", got.LastError)
}

func TestRecordBounceMovesSentStepToError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.seedClosure(StatusPending)

	_, err := f.svc.SendReport(ctx, c.ID, 9)
	require.NoError(t, err)

	got, err := f.svc.RecordBounce(ctx, c.ID, delivery.KindReport, "550 mailbox unavailable")
	require.NoError(t, err)
	assert.Equal(t, StatusErrorReport, got.Status)
	assert.Equal(t, "550 mailbox unavailable", got.LastError)
	require.NotNil(t, got.LastSentAt)
	assert.Equal(t, []Action{ActionSendReport}, AvailableActions(got.Status))

	inv := f.seedClosure(StatusInvoiceSent)
	got, err = f.svc.RecordBounce(ctx, inv.ID, delivery.KindTaxInvoice, "rejected")
	require.NoError(t, err)
	assert.Equal(t, StatusErrorInvoice, got.Status)
}

func TestRecordBounceLeavesLaterStatusAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.seedClosure(StatusInvoiceSent)

	got, err := f.svc.RecordBounce(ctx, c.ID, delivery.KindReport, "late bounce")
	require.NoError(t, err)
	assert.Equal(t, StatusInvoiceSent, got.Status)
	assert.Empty(t, f.repo.closures[c.ID].LastError)

	_, err = f.svc.RecordBounce(ctx, c.ID, delivery.KindBillingNotice, "x")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RecordBounce(ctx, 404, delivery.KindReport, "x")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransitionStoreFailureIsReturned(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	f.repo.updateError = errors.New("write failed")

	_, err := f.svc.SendReport(context.Background(), c.ID, 9)
	assert.Error(t, err)
}

func TestTransitionMissingClosure(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SendReport(context.Background(), 404, 9)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// OVERRIDE / NOTES / DELETE
// ============================================================================

func TestOverrideRecordsAuditTrail(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusReportSent)

	got, err := f.svc.Override(context.Background(), c.ID, OverrideInput{
		TotalP: 3, TotalM: 0, TotalG: 1, TotalValue: decimal.RequireFromString("60.00"), Reason: " ajuste ", ActorID: 42,
	})
	require.NoError(t, err)
	assert.True(t, got.Overridden)
	require.NotNil(t, got.OverriddenBy)
	assert.Equal(t, int64(42), *got.OverriddenBy)
	assert.Equal(t, "ajuste", got.OverrideReason)
	assert.Equal(t, StatusReportSent, got.Status)

	require.Len(t, f.audit.logs, 1)
	log := f.audit.logs[0]
	assert.Equal(t, "closure.override", log.Action)
	assert.Equal(t, int64(42), log.ActorID)
	assert.Equal(t, "1", log.EntityID)
}

func TestOverrideValidation(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	ctx := context.Background()

	_, err := f.svc.Override(ctx, c.ID, OverrideInput{TotalP: 1, TotalValue: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Override(ctx, c.ID, OverrideInput{TotalP: -1, Reason: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Override(ctx, c.ID, OverrideInput{TotalValue: decimal.NewFromInt(-5), Reason: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, f.audit.logs)
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)

	got, err := f.svc.UpdateNotes(context.Background(), c.ID, "  pagar até dia 10 ")
	require.NoError(t, err)
	assert.Equal(t, "pagar até dia 10", got.Notes)
	assert.Equal(t, StatusPending, got.Status)
}

func TestDeleteRemovesSendsFirst(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, c.ID, 9))
	assert.Equal(t, []int64{c.ID}, f.cleaner.deleted)
	assert.Empty(t, f.repo.closures)

	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID, 9), shared.ErrNotFound)
}

func TestDeleteStopsWhenSendCleanupFails(t *testing.T) {
	f := newFixture()
	c := f.seedClosure(StatusPending)
	f.cleaner.err = errors.New("locked")

	assert.Error(t, f.svc.Delete(context.Background(), c.ID, 9))
	assert.Len(t, f.repo.closures, 1)
}

func TestCountByStatus(t *testing.T) {
	f := newFixture()
	f.seedClosure(StatusPending)
	f.repo.closures[9] = &Closure{ID: 9, CompanyID: 2, Month: 2, Year: 2024, Status: StatusPending}
	f.repo.closures[10] = &Closure{ID: 10, CompanyID: 2, Month: 1, Year: 2024, Status: StatusCompleted}

	n, err := f.svc.CountByStatus(context.Background(), StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.CountByStatus(context.Background(), Status("pendente"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ============================================================================
// SUMMARIES
// ============================================================================

func TestSummarize(t *testing.T) {
	closures := []Closure{
		{Status: StatusPending, TotalP: 1, TotalValue: decimal.NewFromInt(15)},
		{Status: StatusReportSent, TotalM: 2, TotalValue: decimal.NewFromInt(36)},
		{Status: StatusInvoiceSent, TotalG: 1, TotalValue: decimal.NewFromInt(22)},
		{Status: StatusCompleted, TotalP: 2, TotalValue: decimal.NewFromInt(30)},
		{Status: StatusErrorInvoice, TotalP: 1, TotalValue: decimal.NewFromInt(15)},
	}
	stats := Summarize(closures)
	assert.Equal(t, 5, stats.Companies)
	assert.Equal(t, "118", stats.TotalRevenue.String())
	assert.Equal(t, 7, stats.TotalMeals)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Paid)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.ByStatus[StatusPending])
	assert.Equal(t, 0, stats.ByStatus[StatusPaymentPending])
}

func TestAggregateRecords(t *testing.T) {
	totals := AggregateRecords([]consumption.Record{
		record(1, "2024-03-01", pricing.SizeSmall, 2, "27.00"),
		record(1, "2024-03-02", pricing.SizeMedium, 1, "16.20"),
		record(1, "2024-03-03", pricing.SizeLarge, 3, "59.40"),
	})
	assert.Equal(t, 3, totals.Records)
	assert.Equal(t, 2, totals.TotalP)
	assert.Equal(t, 1, totals.TotalM)
	assert.Equal(t, 3, totals.TotalG)
	assert.Equal(t, "102.60", totals.Value.StringFixed(2))
}
