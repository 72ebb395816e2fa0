// Package ledger posts completed orders to the external order ledger.
package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// Client appends orders to the ledger endpoint over HTTPS. The request
// body is signed with HMAC-SHA256 so the ledger can reject forgeries.
type Client struct {
	httpClient *http.Client
	url        string
	secret     []byte
}

func New(cfg config.LedgerConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        cfg.URL,
		secret:     []byte(cfg.Secret),
	}
}

// AppendOrder writes one order. Callers own deduplication; a retried
// call after a transport error may reach the ledger twice, which the
// ledger tolerates by order id.
func (c *Client) AppendOrder(ctx context.Context, order *models.Order) error {
	if c.url == "" {
		return fmt.Errorf("ledger: url not configured")
	}

	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("ledger: marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		req.Header.Set("X-Signature", sign(c.secret, body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger: status %d: %s", resp.StatusCode, string(respBody))
	}

	log.Info().Str("order", order.ID).Msg("Order appended to ledger")
	return nil
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
