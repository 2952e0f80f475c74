package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/marmitas/backoffice/internal/delivery"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentDeliver hands a rendered document to the mail transport.
	TaskDocumentDeliver = "document:deliver"
	// DeliverMaxRetry bounds transport retries of a single hand-off.
	DeliverMaxRetry = 5
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// CleanupMaxRetry bounds retries of a cleanup run; the next schedule catches up.
	CleanupMaxRetry = 1
	// CleanupSchedule is the cron spec of the cleanup run.
	CleanupSchedule = "@hourly"
)

// NewDeliverTask wraps an envelope into an asynq task.
func NewDeliverTask(env delivery.Envelope) (*asynq.Task, error) {
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("jobs: unknown document kind %q", env.Kind)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentDeliver, data, asynq.MaxRetry(DeliverMaxRetry), asynq.Queue(QueueDefault)), nil
}

// ParseDeliverTask decodes the envelope carried by a deliver task.
func ParseDeliverTask(t *asynq.Task) (delivery.Envelope, error) {
	var env delivery.Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return delivery.Envelope{}, err
	}
	return env, nil
}
