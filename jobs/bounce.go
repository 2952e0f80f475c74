package jobs

import (
	"context"
	"fmt"

	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/documents"
)

// SendBounces marks tracked document sends as failed.
type SendBounces interface {
	RecordBounce(ctx context.Context, id int64, reason string) (documents.Send, error)
}

// ClosureBounces moves closure steps back to their error status.
type ClosureBounces interface {
	RecordBounce(ctx context.Context, id int64, kind delivery.Kind, reason string) (closing.Closure, error)
}

// BounceRouter writes abandoned deliveries back to the record that asked for
// them: the document send when the envelope carries one, else the closure.
type BounceRouter struct {
	Sends    SendBounces
	Closures ClosureBounces
}

// RecordBounce implements BounceRecorder.
func (b BounceRouter) RecordBounce(ctx context.Context, env delivery.Envelope, reason string) error {
	switch {
	case env.SendID != 0 && b.Sends != nil:
		if _, err := b.Sends.RecordBounce(ctx, env.SendID, reason); err != nil {
			return fmt.Errorf("jobs: bounce send %d: %w", env.SendID, err)
		}
	case env.SendID == 0 && env.ClosureID != 0 && b.Closures != nil:
		if _, err := b.Closures.RecordBounce(ctx, env.ClosureID, env.Kind, reason); err != nil {
			return fmt.Errorf("jobs: bounce closure %d: %w", env.ClosureID, err)
		}
	}
	return nil
}

var _ BounceRecorder = BounceRouter{}
