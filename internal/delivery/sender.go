package delivery

import (
	"context"
	"log/slog"
)

// Recorder observes delivery outcomes.
type Recorder interface {
	ObserveDocumentSend(kind string, err error)
}

// Sender composes and delivers documents. Errors describe why a send failed
// and are meant to be stored on the closure or document record.
type Sender struct {
	composer  *Composer
	deliverer Deliverer
	recorder  Recorder
	logger    *slog.Logger
}

// NewSender wires a Sender. recorder may be nil.
func NewSender(composer *Composer, deliverer Deliverer, recorder Recorder, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{composer: composer, deliverer: deliverer, recorder: recorder, logger: logger}
}

// Send renders kind for the summary and hands it to the deliverer.
func (s *Sender) Send(ctx context.Context, kind Kind, summary Summary) error {
	env, err := s.composer.Compose(ctx, kind, summary)
	if err == nil {
		err = s.deliverer.Deliver(ctx, env)
	}
	if s.recorder != nil {
		s.recorder.ObserveDocumentSend(string(kind), err)
	}
	if err != nil {
		s.logger.Warn("document delivery failed",
			slog.String("kind", string(kind)),
			slog.Int64("closure_id", summary.ClosureID),
			slog.Any("error", err))
		return err
	}
	s.logger.Info("document handed off",
		slog.String("kind", string(kind)),
		slog.Int64("closure_id", summary.ClosureID),
		slog.String("recipient", env.Recipient))
	return nil
}
