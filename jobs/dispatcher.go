package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/marmitas/backoffice/internal/delivery"
)

// Enqueuer is the subset of asynq.Client used by Dispatcher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher implements delivery.Deliverer by queueing envelopes for the
// worker. A failed enqueue is a failed delivery.
type Dispatcher struct {
	client Enqueuer
	logger *slog.Logger
}

// NewDispatcher wraps an asynq client.
func NewDispatcher(client Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, logger: logger}
}

// Deliver implements delivery.Deliverer.
func (d *Dispatcher) Deliver(ctx context.Context, env delivery.Envelope) error {
	if env.Recipient == "" {
		return delivery.ErrNoRecipient
	}
	task, err := NewDeliverTask(env)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", env.Kind, err)
	}
	d.logger.Debug("document queued",
		slog.String("task_id", info.ID),
		slog.String("kind", string(env.Kind)),
		slog.Int64("closure_id", env.ClosureID))
	return nil
}

var _ delivery.Deliverer = (*Dispatcher)(nil)
