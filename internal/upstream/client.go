// Package upstream is the typed HTTP client for the trading process's API
// surface. It distinguishes transport failures (upstream unavailable) from
// decode failures (schema mismatch) so the reconciliation loop can degrade
// to last-known-good state on either.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rcheng-dev/botconsole/internal/equity"
	"github.com/rcheng-dev/botconsole/internal/model"
	"github.com/rcheng-dev/botconsole/internal/observ"
)

var (
	// ErrUnavailable marks transport-level failures: connection refused,
	// timeouts, non-2xx responses.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrSchema marks responses whose body did not decode as expected.
	ErrSchema = errors.New("upstream schema mismatch")
)

// Config holds the client settings.
type Config struct {
	BaseURL            string  `yaml:"base_url"`
	APIKey             string  `yaml:"api_key"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
}

// Client talks to the trading process. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter

	mu                sync.Mutex
	consecutiveErrors int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 10000
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 10
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), int(cfg.RateLimitPerSecond)),
	}, nil
}

// ConsecutiveErrors reports the current failure streak for health checks.
func (c *Client) ConsecutiveErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BotRuntime(ctx context.Context) (*BotRuntimeResponse, error) {
	var out BotRuntimeResponse
	if err := c.get(ctx, "/api/bot_status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StartBot(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, "/api/start_bot", nil)
}

func (c *Client) StopBot(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, "/api/stop_bot", nil)
}

func (c *Client) RestartBot(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, "/api/restart_bot", nil)
}

func (c *Client) UpdateConfig(ctx context.Context, cfg map[string]any) (*ActionResponse, error) {
	return c.action(ctx, "/api/update_config", cfg)
}

func (c *Client) TradingLogs(ctx context.Context) (*TradingLogsResponse, error) {
	var out TradingLogsResponse
	if err := c.get(ctx, "/api/trading_logs", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignalAccuracy(ctx context.Context) (*SignalAccuracyResponse, error) {
	var out SignalAccuracyResponse
	if err := c.get(ctx, "/api/signal_accuracy", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AIDecisions(ctx context.Context) ([]model.Decision, error) {
	var out struct {
		Decisions []model.Decision `json:"decisions"`
	}
	if err := c.get(ctx, "/api/ai_decisions", nil, &out); err != nil {
		return nil, err
	}
	return out.Decisions, nil
}

func (c *Client) Trades(ctx context.Context) ([]model.TradeFill, error) {
	var out struct {
		Trades []model.TradeFill `json:"trades"`
	}
	if err := c.get(ctx, "/api/trades", nil, &out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

// EquityOverview queries the current-generation endpoint. An error
// envelope in the body is returned as data, not as an error: the equity
// reconciler owns the fallback decision.
func (c *Client) EquityOverview(ctx context.Context, rng string) (*equity.OverviewResponse, error) {
	var out equity.OverviewResponse
	q := url.Values{}
	if rng != "" {
		q.Set("range", rng)
	}
	if err := c.get(ctx, "/api/overview", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EquityCurveLegacy queries the previous-generation endpoint.
func (c *Client) EquityCurveLegacy(ctx context.Context) (*equity.LegacyResponse, error) {
	var out equity.LegacyResponse
	if err := c.get(ctx, "/api/equity_curve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) action(ctx context.Context, path string, body map[string]any) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observ.RecordDuration("upstream_request", time.Since(start), map[string]string{"path": path})
	observ.IncCounter("upstream_requests_total", map[string]string{"path": path})
	if err != nil {
		c.recordFailure(path, err)
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.recordFailure(path, err)
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
		c.recordFailure(path, err)
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.recordFailure(path, err)
		return fmt.Errorf("%w: decode %s: %v", ErrSchema, path, err)
	}

	c.mu.Lock()
	c.consecutiveErrors = 0
	c.mu.Unlock()
	return nil
}

func (c *Client) recordFailure(path string, err error) {
	c.mu.Lock()
	c.consecutiveErrors++
	streak := c.consecutiveErrors
	c.mu.Unlock()

	observ.IncCounter("upstream_errors_total", map[string]string{"path": path})
	if streak == 1 || streak%10 == 0 {
		observ.Log("upstream_error", map[string]any{
			"path":   path,
			"streak": streak,
			"error":  err.Error(),
		})
	}
}
