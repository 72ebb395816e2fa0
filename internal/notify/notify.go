// Package notify delivers escalation and order alerts to the human
// support channel.
//
// Two drivers ship: a chat driver that messages the support number on
// the same transport the customers use, and a webhook driver that
// posts signed JSON events to an external URL. A Service fans one
// notification out to every configured driver; a driver failure is
// logged and never surfaces to the customer turn.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/contracts"
)

// Driver sends one notification over one channel.
type Driver interface {
	Kind() string
	Send(ctx context.Context, text string) error
}

// Service fans notifications out to all registered drivers.
type Service struct {
	drivers []Driver
}

func NewService(drivers ...Driver) *Service {
	for _, d := range drivers {
		log.Info().Str("kind", d.Kind()).Msg("Registered support notification driver")
	}
	return &Service{drivers: drivers}
}

// NotifySupport delivers text on every channel. The first error is
// returned after all drivers have been tried.
func (s *Service) NotifySupport(ctx context.Context, text string) error {
	var firstErr error
	for _, d := range s.drivers {
		if err := d.Send(ctx, text); err != nil {
			log.Warn().Err(err).Str("kind", d.Kind()).Msg("Support notification driver failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ── Chat driver ─────────────────────────────────────────────

// ChatDriver messages the support number over the customer transport.
type ChatDriver struct {
	sender contracts.MessageSender
	number string
}

func NewChatDriver(sender contracts.MessageSender, number string) *ChatDriver {
	return &ChatDriver{sender: sender, number: number}
}

func (d *ChatDriver) Kind() string { return "chat" }

func (d *ChatDriver) Send(ctx context.Context, text string) error {
	if d.number == "" {
		return fmt.Errorf("notify: support number not configured")
	}
	return d.sender.SendText(ctx, d.number, text)
}

// ── Webhook driver ──────────────────────────────────────────

// WebhookDriver posts a signed JSON event to an external URL.
type WebhookDriver struct {
	client *http.Client
	url    string
	secret []byte
}

func NewWebhookDriver(cfg config.SupportConfig) *WebhookDriver {
	return &WebhookDriver{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    cfg.WebhookURL,
		secret: []byte(cfg.WebhookSecret),
	}
}

func (d *WebhookDriver) Kind() string { return "webhook" }

type webhookEvent struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *WebhookDriver) Send(ctx context.Context, text string) error {
	if d.url == "" {
		return fmt.Errorf("notify: webhook url not configured")
	}

	body, err := json.Marshal(webhookEvent{
		Type:      "support_alert",
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(d.secret) > 0 {
		mac := hmac.New(sha256.New, d.secret)
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook status %d", resp.StatusCode)
	}
	return nil
}
