package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bookfinder/apiserver/internal/mq"
)

// Dispatcher hands an email off for delivery that the caller does not wait on.
type Dispatcher interface {
	Dispatch(ctx context.Context, email Email) error
}

// DirectDispatcher sends in-process through a Mailer.
type DirectDispatcher struct {
	mailer Mailer
}

func NewDirectDispatcher(mailer Mailer) *DirectDispatcher {
	return &DirectDispatcher{mailer: mailer}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, email Email) error {
	return d.mailer.Send(ctx, email)
}

// QueueDispatcher publishes emails as JSON for a Worker to send.
type QueueDispatcher struct {
	backend mq.Backend
	channel string
}

func NewQueueDispatcher(backend mq.Backend, channel string) *QueueDispatcher {
	return &QueueDispatcher{backend: backend, channel: channel}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, email Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	attrs := map[string]string{
		mq.AttrContentType: "application/json",
		"kind":             string(email.Kind),
	}
	if _, err := d.backend.Publish(ctx, d.channel, data, attrs); err != nil {
		return fmt.Errorf("enqueue %s email: %w", email.Kind, err)
	}
	return nil
}
