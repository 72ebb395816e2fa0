// Package backend implements the reasoning backend clients.
//
// A Client wraps one provider driver with the retry budget and
// per-attempt timeout that the pipeline's failover contract expects:
// a Generate call either succeeds within the budget or returns the last
// error, and the caller decides whether to fail over to another backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrExhausted wraps the last attempt's error once a backend's retry
// budget is spent.
var ErrExhausted = errors.New("backend attempts exhausted")

// Driver is one provider protocol (gemini, openai-compatible).
type Driver interface {
	Kind() string
	Call(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// Client is a retrying reasoning backend built on a Driver.
type Client struct {
	name        string
	driver      Driver
	maxAttempts int
	timeout     time.Duration
	temperature float64
}

// New builds a Client from config. Unknown kinds fall back to the
// openai-compatible driver, mirroring how generic endpoints behave.
func New(name string, cfg config.BackendConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var drv Driver
	switch cfg.Kind {
	case "gemini":
		drv = newGeminiDriver(httpClient, cfg)
	default:
		drv = newOpenAIDriver(httpClient, cfg)
	}

	return &Client{
		name:        name,
		driver:      drv,
		maxAttempts: max(cfg.MaxAttempts, 1),
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
	}
}

// Name identifies the backend in logs.
func (c *Client) Name() string { return c.name }

// Generate runs the model call with up to maxAttempts tries. A timeout
// counts as a retryable failure against this backend's budget.
func (c *Client) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.driver.Call(attemptCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		log.Warn().
			Str("backend", c.name).
			Str("driver", c.driver.Kind()).
			Int("attempt", attempt).
			Err(err).
			Msg("Backend call failed")

		// The caller is gone; retrying is pointless.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w (%s after %d attempts): %v", ErrExhausted, c.name, c.maxAttempts, lastErr)
}
