// Package notify renders and delivers account emails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookfinder/apiserver/config"
	"github.com/bookfinder/apiserver/internal/logging"
)

type Kind string

const (
	KindWelcome       Kind = "welcome"
	KindPasswordReset Kind = "password_reset"
)

// Email is a rendered plain-text message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    Kind   `json:"kind"`
}

// Mailer delivers a single email. Send returns once the provider accepted it.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer builds the mailer selected by cfg.Backend.
func NewMailer(cfg config.MailConfig, logger logging.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "log":
		return NewLogMailer(logger), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTP, cfg.From)
	case "mailtrap":
		return NewMailtrapMailer(cfg.Mailtrap, cfg.From, nil)
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

// LogMailer writes emails to the log instead of sending them. For local development.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.Info(ctx, "email",
		"to", email.To,
		"kind", email.Kind,
		"subject", email.Subject,
		"body", email.Body,
	)
	return nil
}
