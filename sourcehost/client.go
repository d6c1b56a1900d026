// Package sourcehost implements the source-host upstream client (C1): a
// GraphQL client batching pull-request, review, commit and release pages
// per repository or per contributor, with cursor pagination, retry with
// exponential backoff, and secondary-rate-limit pausing. No library in
// the retrieval pack ships a GraphQL client, so this talks the wire
// protocol directly over net/http + encoding/json, the way the rest of
// the stack's upstream clients (forge/gitea.go, forge/gitlab.go) wrap a
// single authenticated HTTP session per instance.
package sourcehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
)

// RetryConfig controls the exponential backoff applied to transient
// upstream failures (timeouts, 5xx).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	Cap         time.Duration
}

// DefaultRetryConfig matches spec.md §4.1's defaults: N=3, base=1s,
// factor=2, cap=30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, Cap: 30 * time.Second}
}

// Config configures a Client.
type Config struct {
	Token          string
	Organization   string
	BaseURL        string
	TimeOffsetDays int
	Retry          RetryConfig
	PageSize       int
	HTTPClient     *http.Client
	Timeout        time.Duration
}

// Client is a single authenticated GraphQL session against the
// source-host. One instance is shared by the collection orchestrator
// across all workers in a job so rate-limit pacing is coherent.
type Client struct {
	cfg    Config
	http   *http.Client
	log    *logrus.Entry
	pageSize int
}

// New constructs a Client. Negative TimeOffsetDays is rejected, matching
// spec.md §4.1's "negative offsets are rejected" rule.
func New(cfg Config, log *logrus.Entry) (*Client, error) {
	if cfg.TimeOffsetDays < 0 {
		return nil, errkind.New(errkind.ConfigError, "sourcehost.New", fmt.Errorf("timeOffsetDays must not be negative, got %d", cfg.TimeOffsetDays))
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{cfg: cfg, http: httpClient, log: log, pageSize: pageSize}, nil
}

// shiftWindow applies the client's configured TimeOffsetDays, shifting
// both bounds back by that many days so results can be aligned against a
// historical snapshot in a parallel environment.
func (c *Client) shiftWindow(w model.Window) model.Window {
	offset := time.Duration(c.cfg.TimeOffsetDays) * 24 * time.Hour
	return model.Window{Since: w.Since.Add(-offset), Until: w.Until.Add(-offset)}
}

// PartialResultError is returned when a page query fails, whether
// transiently after retries or permanently; it carries whatever data was
// collected before the failure, and Cause keeps the underlying error kind.
type PartialResultError struct {
	Collected model.TeamRecordSet
	Cause     error
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("partial source-host collection: %v", e.Cause)
}
func (e *PartialResultError) Unwrap() error { return e.Cause }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// doQuery executes a single GraphQL request with the client's retry and
// rate-limit-pause policy applied. Permanent failures (auth, malformed
// query — detectable via 4xx other than 429) surface immediately per
// spec.md §4.1's failure semantics.
func (c *Client) doQuery(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return errkind.New(errkind.Internal, "sourcehost.doQuery", err)
	}

	delay := c.cfg.Retry.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/graphql", bytes.NewReader(body))
		if err != nil {
			return errkind.New(errkind.Internal, "sourcehost.doQuery", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if !shouldRetry(ctx, 0, c, attempt, &delay) {
				return errkind.New(errkind.UpstreamTransient, "sourcehost.doQuery", err)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			c.pauseForRateLimit(ctx, resp)
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited: status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return errkind.New(errkind.UpstreamPermanent, "sourcehost.doQuery", fmt.Errorf("authentication failed: status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			if !shouldRetry(ctx, 0, c, attempt, &delay) {
				return errkind.New(errkind.UpstreamTransient, "sourcehost.doQuery", lastErr)
			}
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return errkind.New(errkind.UpstreamPermanent, "sourcehost.doQuery", fmt.Errorf("malformed query: status %d", resp.StatusCode))
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			if !shouldRetry(ctx, 0, c, attempt, &delay) {
				return errkind.New(errkind.UpstreamTransient, "sourcehost.doQuery", err)
			}
			continue
		}

		var gr graphQLResponse
		if err := json.Unmarshal(raw, &gr); err != nil {
			return errkind.New(errkind.UpstreamPermanent, "sourcehost.doQuery", fmt.Errorf("decode response: %w", err))
		}
		if len(gr.Errors) > 0 {
			return errkind.New(errkind.UpstreamPermanent, "sourcehost.doQuery", fmt.Errorf("graphql error: %s", gr.Errors[0].Message))
		}
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return errkind.New(errkind.Internal, "sourcehost.doQuery", fmt.Errorf("decode data: %w", err))
		}
		return nil
	}
	return errkind.New(errkind.UpstreamTransient, "sourcehost.doQuery", fmt.Errorf("retries exhausted: %w", lastErr))
}

// shouldRetry sleeps the current backoff delay (respecting context
// cancellation) and advances delay toward the configured cap, returning
// false once attempts are exhausted.
func shouldRetry(ctx context.Context, _ int, c *Client, attempt int, delay *time.Duration) bool {
	if attempt >= c.cfg.Retry.MaxAttempts {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*delay):
	}
	next := time.Duration(float64(*delay) * c.cfg.Retry.Factor)
	if next > c.cfg.Retry.Cap {
		next = c.cfg.Retry.Cap
	}
	*delay = next
	return true
}

// pauseForRateLimit blocks until the upstream's advertised reset time,
// read from Retry-After (seconds) when present.
func (c *Client) pauseForRateLimit(ctx context.Context, resp *http.Response) {
	wait := 5 * time.Second
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	}
	c.log.WithField("wait", wait).Warn("source-host secondary rate limit, pausing")
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
