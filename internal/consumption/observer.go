package consumption

import (
	"context"
	"log/slog"
)

// Invalidator drops cached data derived from records.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// LogObserver logs record changes and invalidates report caches.
type LogObserver struct {
	Logger *slog.Logger
	Caches []Invalidator
}

func (o LogObserver) RecordCreated(ctx context.Context, rec Record) {
	o.log().Info("consumption record created",
		slog.Int64("record_id", rec.ID),
		slog.Int64("company_id", rec.CompanyID),
		slog.String("size", string(rec.Size)),
		slog.Int("quantity", rec.Quantity),
		slog.String("total", rec.TotalPrice.StringFixed(2)))
	o.invalidate(ctx)
}

func (o LogObserver) RecordDeleted(ctx context.Context, rec Record) {
	o.log().Info("consumption record deleted",
		slog.Int64("record_id", rec.ID),
		slog.Int64("company_id", rec.CompanyID))
	o.invalidate(ctx)
}

func (o LogObserver) invalidate(ctx context.Context) {
	for _, c := range o.Caches {
		if err := c.Bump(ctx); err != nil {
			o.log().Warn("consumption cache invalidation", slog.Any("error", err))
		}
	}
}

func (o LogObserver) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
