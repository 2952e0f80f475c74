package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/marmitas/backoffice/internal/delivery"
	jobmetrics "github.com/marmitas/backoffice/internal/jobs"
)

// BounceRecorder stores a delivery the worker gave up on.
type BounceRecorder interface {
	RecordBounce(ctx context.Context, env delivery.Envelope, reason string) error
}

// DeliverJob sends queued envelopes through the configured transport.
type DeliverJob struct {
	Transport delivery.Deliverer
	Bounces   BounceRecorder
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics

	attempts func(ctx context.Context) (retried, maxRetry int, ok bool)
}

// NewDeliverJob wires the deliver handler. bounces may be nil.
func NewDeliverJob(transport delivery.Deliverer, bounces BounceRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliverJob {
	return &DeliverJob{Transport: transport, Bounces: bounces, Logger: logger, Metrics: metrics, attempts: asynqAttempts}
}

func asynqAttempts(ctx context.Context) (int, int, bool) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return retried, maxRetry, ok
}

// Handle processes TaskDocumentDeliver tasks. The last failed attempt, or a
// failure that is never retried, is written back to the owning record.
func (j *DeliverJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Transport == nil {
		return errors.New("document deliver: handler not configured")
	}
	env, err := ParseDeliverTask(t)
	if err != nil {
		return fmt.Errorf("document deliver: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDocumentDeliver, string(env.Kind))
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("kind", string(env.Kind)),
		slog.Int64("closure_id", env.ClosureID),
		slog.Int64("send_id", env.SendID),
		slog.String("recipient", env.Recipient))

	err = j.Transport.Deliver(ctx, env)
	switch {
	case err == nil:
		logger.Info("document delivered")
		return nil
	case errors.Is(err, delivery.ErrNoRecipient):
		logger.Warn("document dropped", slog.Any("error", err))
		j.bounce(ctx, logger, tracker, env, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case j.lastAttempt(ctx):
		logger.Error("document delivery abandoned", slog.Any("error", err))
		j.bounce(ctx, logger, tracker, env, err)
		return err
	default:
		logger.Error("document delivery failed", slog.Any("error", err))
		return err
	}
}

func (j *DeliverJob) lastAttempt(ctx context.Context) bool {
	if j.attempts == nil {
		return false
	}
	retried, maxRetry, ok := j.attempts(ctx)
	return ok && retried >= maxRetry
}

func (j *DeliverJob) bounce(ctx context.Context, logger *slog.Logger, tracker *jobmetrics.Tracker, env delivery.Envelope, cause error) {
	tracker.Abandon()
	if j.Bounces == nil {
		return
	}
	if err := j.Bounces.RecordBounce(ctx, env, cause.Error()); err != nil {
		logger.Error("record bounce", slog.Any("error", err))
	}
}

func (j *DeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
