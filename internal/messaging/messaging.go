// Package messaging is the WhatsApp Cloud API transport: outbound
// text, read receipts, webhook verification, and inbound payload
// parsing.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// Client talks to the Graph API on behalf of one phone number.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	accessToken   string
	phoneNumberID string
	verifyToken   string
}

func New(cfg config.MessagingConfig) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		endpoint:      cfg.GraphEndpoint,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		verifyToken:   cfg.VerifyToken,
	}
}

// SendText delivers one plain-text message to a phone number in
// international format.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        text,
		},
	}
	return c.post(ctx, payload)
}

// MarkAsRead sets the read receipt on one inbound message.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return c.post(ctx, payload)
}

func (c *Client) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.endpoint, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("Graph API error")
		return fmt.Errorf("messaging: status %d", resp.StatusCode)
	}
	return nil
}

// VerifyWebhook answers Meta's subscription handshake. It returns the
// challenge to echo, or ok=false when the token does not match.
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token != "" && token == c.verifyToken {
		return challenge, true
	}
	return "", false
}

// Webhook payload shapes, trimmed to the fields the bot reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseIncoming extracts the first message from a webhook delivery.
// Status-only deliveries (sent/delivered/read callbacks) return nil
// with no error; they are valid payloads with nothing to answer.
func ParseIncoming(body []byte) (*models.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("messaging: parse webhook: %w", err)
	}

	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, nil
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, nil
	}

	msg := value.Messages[0]
	inbound := &models.InboundMessage{
		Sender:    msg.From,
		MessageID: msg.ID,
		Text:      msg.Text.Body,
		Timestamp: msg.Timestamp,
		Type:      msg.Type,
	}
	if len(value.Contacts) > 0 {
		inbound.SenderName = value.Contacts[0].Profile.Name
	}
	return inbound, nil
}
