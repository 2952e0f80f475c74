package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/documents"
	jobmetrics "github.com/marmitas/backoffice/internal/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func sampleEnvelope() delivery.Envelope {
	return delivery.Envelope{
		Kind:      delivery.KindReport,
		ClosureID: 7,
		CompanyID: 1,
		Recipient: "maria@alfa.com",
		Subject:   "Relatório",
		Body:      "Olá",
		SendID:    42,
	}
}

func TestDeliverTaskRoundTrip(t *testing.T) {
	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	assert.Equal(t, TaskDocumentDeliver, task.Type())

	env, err := ParseDeliverTask(task)
	require.NoError(t, err)
	assert.Equal(t, sampleEnvelope(), env)
}

func TestNewDeliverTaskRejectsUnknownKind(t *testing.T) {
	env := sampleEnvelope()
	env.Kind = "receipt"
	_, err := NewDeliverTask(env)
	assert.Error(t, err)
}

func TestDispatcherEnqueues(t *testing.T) {
	client := &stubEnqueuer{}
	d := NewDispatcher(client, nil)

	require.NoError(t, d.Deliver(context.Background(), sampleEnvelope()))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TaskDocumentDeliver, client.tasks[0].Type())
}

func TestDispatcherRequiresRecipient(t *testing.T) {
	client := &stubEnqueuer{}
	env := sampleEnvelope()
	env.Recipient = ""

	err := NewDispatcher(client, nil).Deliver(context.Background(), env)
	assert.ErrorIs(t, err, delivery.ErrNoRecipient)
	assert.Empty(t, client.tasks)
}

func TestDispatcherEnqueueFailure(t *testing.T) {
	client := &stubEnqueuer{err: errors.New("redis down")}
	err := NewDispatcher(client, nil).Deliver(context.Background(), sampleEnvelope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestDeliverJobSendsEnvelope(t *testing.T) {
	var got delivery.Envelope
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewDeliverJob(delivery.DelivererFunc(func(_ context.Context, env delivery.Envelope) error {
		got = env
		return nil
	}), nil, nil, metrics)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, "maria@alfa.com", got.Recipient)
}

func TestDeliverJobTransportFailureIsRetried(t *testing.T) {
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return errors.New("smtp: 421")
	}), nil, nil, nil)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestDeliverJobSkipsRetryWithoutRecipient(t *testing.T) {
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return delivery.ErrNoRecipient
	}), nil, nil, nil)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDeliverJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		t.Fatal("transport must not be called")
		return nil
	}), nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskDocumentDeliver, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDeliverJobRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return errors.New("boom")
	}), nil, nil, metrics)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	_ = job.Handle(context.Background(), task)

	count, err := testutil.GatherAndCount(registry, "backoffice_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type stubBounces struct {
	envs    []delivery.Envelope
	reasons []string
	err     error
}

func (s *stubBounces) RecordBounce(_ context.Context, env delivery.Envelope, reason string) error {
	s.envs = append(s.envs, env)
	s.reasons = append(s.reasons, reason)
	return s.err
}

func failingJob(bounces BounceRecorder, metrics *jobmetrics.Metrics, retried, maxRetry int) *DeliverJob {
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return errors.New("smtp: 550 mailbox unavailable")
	}), bounces, nil, metrics)
	job.attempts = func(context.Context) (int, int, bool) { return retried, maxRetry, true }
	return job
}

func TestDeliverJobWritesBackOnLastAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	bounces := &stubBounces{}
	job := failingJob(bounces, jobmetrics.NewMetrics(registry), DeliverMaxRetry, DeliverMaxRetry)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	require.Len(t, bounces.envs, 1)
	assert.Equal(t, int64(42), bounces.envs[0].SendID)
	assert.Equal(t, "smtp: 550 mailbox unavailable", bounces.reasons[0])

	count, err := testutil.GatherAndCount(registry, "backoffice_jobs_abandoned_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeliverJobDoesNotWriteBackWhileRetrying(t *testing.T) {
	bounces := &stubBounces{}
	job := failingJob(bounces, nil, 2, DeliverMaxRetry)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	assert.Empty(t, bounces.envs)
}

func TestDeliverJobOutsideWorkerNeverWritesBack(t *testing.T) {
	bounces := &stubBounces{}
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return errors.New("smtp: 421")
	}), bounces, nil, nil)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	assert.Empty(t, bounces.envs)
}

func TestDeliverJobWritesBackMissingRecipient(t *testing.T) {
	bounces := &stubBounces{err: errors.New("db down")}
	job := NewDeliverJob(delivery.DelivererFunc(func(context.Context, delivery.Envelope) error {
		return delivery.ErrNoRecipient
	}), bounces, nil, nil)

	task, err := NewDeliverTask(sampleEnvelope())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	require.Len(t, bounces.envs, 1)
}

type stubSendBounces struct{ ids []int64 }

func (s *stubSendBounces) RecordBounce(_ context.Context, id int64, _ string) (documents.Send, error) {
	s.ids = append(s.ids, id)
	return documents.Send{ID: id}, nil
}

type stubClosureBounces struct {
	ids   []int64
	kinds []delivery.Kind
	err   error
}

func (s *stubClosureBounces) RecordBounce(_ context.Context, id int64, kind delivery.Kind, _ string) (closing.Closure, error) {
	s.ids = append(s.ids, id)
	s.kinds = append(s.kinds, kind)
	return closing.Closure{ID: id}, s.err
}

func TestBounceRouterPrefersSend(t *testing.T) {
	sends := &stubSendBounces{}
	closures := &stubClosureBounces{}
	router := BounceRouter{Sends: sends, Closures: closures}

	require.NoError(t, router.RecordBounce(context.Background(), sampleEnvelope(), "550"))
	assert.Equal(t, []int64{42}, sends.ids)
	assert.Empty(t, closures.ids)
}

func TestBounceRouterFallsBackToClosure(t *testing.T) {
	sends := &stubSendBounces{}
	closures := &stubClosureBounces{}
	router := BounceRouter{Sends: sends, Closures: closures}

	env := sampleEnvelope()
	env.SendID = 0
	env.Kind = delivery.KindTaxInvoice
	require.NoError(t, router.RecordBounce(context.Background(), env, "550"))
	assert.Empty(t, sends.ids)
	assert.Equal(t, []int64{7}, closures.ids)
	assert.Equal(t, []delivery.Kind{delivery.KindTaxInvoice}, closures.kinds)

	closures.err = errors.New("conflict")
	err := router.RecordBounce(context.Background(), env, "550")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closure 7")
}

func TestBounceRouterIgnoresUnownedEnvelope(t *testing.T) {
	closures := &stubClosureBounces{}
	env := sampleEnvelope()
	env.SendID = 0
	env.ClosureID = 0
	require.NoError(t, BounceRouter{Closures: closures}.RecordBounce(context.Background(), env, "550"))
	assert.Empty(t, closures.ids)
}

type stubCleaner struct {
	olderThan time.Duration
	calls     int
	err       error
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	s.calls++
	s.olderThan = olderThan
	return s.err
}

func TestCleanupJobPrunesWithRetention(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := &stubCleaner{}
	job := NewCleanupJob(store, 72*time.Hour, nil, jobmetrics.NewMetrics(registry))

	task := NewCleanupTask()
	assert.Equal(t, TaskIdempotencyCleanup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 72*time.Hour, store.olderThan)

	count, err := testutil.GatherAndCount(registry, "backoffice_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCleanupJobFailures(t *testing.T) {
	store := &stubCleaner{err: errors.New("db down")}
	err := NewCleanupJob(store, time.Hour, nil, nil).Handle(context.Background(), NewCleanupTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	err = NewCleanupJob(store, 0, nil, nil).Handle(context.Background(), NewCleanupTask())
	assert.Error(t, err)
	assert.Equal(t, 1, store.calls)

	var job *CleanupJob
	assert.Error(t, job.Handle(context.Background(), NewCleanupTask()))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}

func TestNewWorkerRejectsBadCronSpec(t *testing.T) {
	cleanup := NewCleanupJob(&stubCleaner{}, time.Hour, nil, nil)
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskIdempotencyCleanup, Handler: cleanup.Handle}},
		Cron:      []CronRegistration{{Spec: "every tuesday", Task: NewCleanupTask()}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), TaskIdempotencyCleanup)
}

func TestNewWorkerSchedulesCleanup(t *testing.T) {
	cleanup := NewCleanupJob(&stubCleaner{}, time.Hour, nil, nil)
	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskIdempotencyCleanup, Handler: cleanup.Handle}},
		Cron:      []CronRegistration{{Spec: CleanupSchedule, Task: NewCleanupTask()}},
	})
	require.NoError(t, err)
	assert.NotNil(t, w.scheduler)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec
}

func TestHealthReportsQueueDepth(t *testing.T) {
	rec := serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pending)
	assert.Equal(t, 1, body.Retry)
}

func TestHealthMissingQueueIsEmpty(t *testing.T) {
	rec := serveHealth(t, stubInspector{err: asynq.ErrQueueNotFound})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthInspectorFailure(t *testing.T) {
	rec := serveHealth(t, stubInspector{err: errors.New("dial tcp")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
