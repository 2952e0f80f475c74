package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/marmitas/backoffice/internal/jobs"
)

// KeyCleaner deletes idempotency keys past their retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// CleanupJob prunes the idempotency key table.
type CleanupJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCleanupJob wires the cleanup handler.
func NewCleanupJob(store KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// NewCleanupTask builds the scheduled cleanup task.
func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.MaxRetry(CleanupMaxRetry), asynq.Queue(QueueDefault))
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if j.Retention <= 0 {
		return errors.New("idempotency cleanup: retention must be positive")
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup, "idempotency_keys")
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := j.Store.Cleanup(ctx, j.Retention); err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	logger.Info("idempotency cleanup", slog.Duration("retention", j.Retention))
	return nil
}
