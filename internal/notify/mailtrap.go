package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bookfinder/apiserver/config"
)

type mailtrapAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailtrapRequest struct {
	From     mailtrapAddress   `json:"from"`
	To       []mailtrapAddress `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	Category string            `json:"category,omitempty"`
}

// MailtrapMailer sends through the Mailtrap transactional HTTP API.
type MailtrapMailer struct {
	url    string
	token  string
	from   string
	client *http.Client
}

func NewMailtrapMailer(cfg config.MailtrapConfig, from string, client *http.Client) (*MailtrapMailer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("mailtrap api url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("mailtrap api token is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MailtrapMailer{
		url:    cfg.URL,
		token:  cfg.Token,
		from:   from,
		client: client,
	}, nil
}

func (m *MailtrapMailer) Send(ctx context.Context, email Email) error {
	payload, err := json.Marshal(mailtrapRequest{
		From:     mailtrapAddress{Email: m.from, Name: "BookFinder"},
		To:       []mailtrapAddress{{Email: email.To}},
		Subject:  email.Subject,
		Text:     email.Body,
		Category: string(email.Kind),
	})
	if err != nil {
		return fmt.Errorf("marshal mailtrap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create mailtrap request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mailtrap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("mailtrap API returned status: %d", resp.StatusCode)
	}
	return nil
}
