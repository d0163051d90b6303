package notify

import (
	"context"
	"encoding/json"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/bookfinder/apiserver/internal/mq"
)

// Worker consumes queued emails and sends them.
type Worker struct {
	backend mq.Backend
	channel string
	mailer  Mailer
	logger  logging.Logger
}

func NewWorker(backend mq.Backend, channel string, mailer Mailer, logger logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Worker{
		backend: backend,
		channel: channel,
		mailer:  mailer,
		logger:  logger.With("component", "notify-worker", "channel", channel),
	}
}

// Run blocks until ctx is done or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info(ctx, "worker started")
	return w.backend.Subscribe(ctx, w.channel, w.Handle)
}

// Handle sends one queued email. Undecodable messages are dropped;
// a failed send is returned so the broker redelivers.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var email Email
	if err := json.Unmarshal(msg.Data, &email); err != nil {
		w.logger.Error(ctx, "dropping undecodable message", "message_id", msg.ID, "error", err)
		return nil
	}
	if email.To == "" {
		w.logger.Error(ctx, "dropping message without recipient", "message_id", msg.ID, "kind", email.Kind)
		return nil
	}

	if err := w.mailer.Send(ctx, email); err != nil {
		w.logger.Warn(ctx, "send failed, will retry", "message_id", msg.ID, "kind", email.Kind, "error", err)
		return err
	}
	w.logger.Debug(ctx, "email sent", "message_id", msg.ID, "kind", email.Kind)
	return nil
}
