// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package upstream is the client for the field-service (Zuper) REST API.
//
// The client performs paginated list fetches and single-record detail fetches. It
// waits out HTTP 429 responses honouring Retry-After, retries 5xx responses and
// transport failures with exponential backoff, paces requests with a token bucket,
// and validates the {type, data, total_pages} response envelope. Errors are classified
// into the sentinels in errors.go.
//
// BreakerClient adds a circuit breaker on top for long-running schedulers.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
)

const (
	apiKeyHeader = "x-api-key"

	// maxBodySize bounds a single response. A 100-record job page is a few MB.
	maxBodySize = 64 << 20
	// maxErrorBodySize bounds the body excerpt kept on errors.
	maxErrorBodySize = 512
)

// API is the upstream surface the sync engine depends on.
type API interface {
	// FetchPage returns one page of list records. Pages are 1-based.
	FetchPage(ctx context.Context, resource models.SyncResource, page, pageSize int) (*Page, error)
	// FetchDetail returns the full record for uid.
	FetchDetail(ctx context.Context, resource models.SyncResource, uid string) (json.RawMessage, error)
	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}

// Page is one decoded list page.
type Page struct {
	Number       int
	Records      []json.RawMessage
	TotalPages   int
	TotalRecords int
}

// envelope is the wrapper around every upstream response.
type envelope struct {
	Type         string          `json:"type"`
	Message      FlexString      `json:"message"`
	Data         json.RawMessage `json:"data"`
	TotalPages   FlexNumber      `json:"total_pages"`
	TotalRecords FlexNumber      `json:"total_records"`
}

// Client talks to the upstream API. Safe for concurrent use.
type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	limiter          *rate.Limiter
	maxRetries       int
	rateLimitRetries int
	retryBaseDelay   time.Duration
	maxRetryAfter    time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
	now              func() time.Time
}

var _ API = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the cancellable wait used between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.UpstreamConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		maxRetries:       cfg.MaxRetries,
		rateLimitRetries: cfg.RateLimitRetries,
		retryBaseDelay:   cfg.RetryBaseDelay,
		maxRetryAfter:    cfg.MaxRetryAfter,
		sleep:            sleepCtx,
		now:              time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resourcePath maps a resource to its list endpoint.
func resourcePath(r models.SyncResource) (string, error) {
	switch r {
	case models.ResourceJobs:
		return "/api/jobs", nil
	case models.ResourceOrganizations:
		return "/api/organization", nil
	default:
		return "", fmt.Errorf("unknown upstream resource %q", r)
	}
}

// FetchPage implements API.
func (c *Client) FetchPage(ctx context.Context, resource models.SyncResource, page, pageSize int) (*Page, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("count", strconv.Itoa(pageSize))
	if resource == models.ResourceOrganizations {
		q.Set("sort_by", "created_at")
		q.Set("sort", "DESC")
	}

	env, err := c.call(ctx, resource, "page", path, q)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return nil, &RequestError{Kind: ErrProtocol, Path: path, Err: fmt.Errorf("data is not a list: %w", err)}
		}
	}

	p := &Page{
		Number:       page,
		Records:      records,
		TotalPages:   env.TotalPages.Int(),
		TotalRecords: env.TotalRecords.Int(),
	}
	// Some responses omit total_pages; derive it so callers can still stop.
	if p.TotalPages == 0 && p.TotalRecords > 0 && pageSize > 0 {
		p.TotalPages = (p.TotalRecords + pageSize - 1) / pageSize
	}
	return p, nil
}

// FetchDetail implements API.
func (c *Client) FetchDetail(ctx context.Context, resource models.SyncResource, uid string) (json.RawMessage, error) {
	base, err := resourcePath(resource)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, fmt.Errorf("fetch %s detail: empty uid", resource)
	}
	path := base + "/" + url.PathEscape(uid)

	env, err := c.call(ctx, resource, "detail", path, nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &RequestError{Kind: ErrProtocol, Path: path, Err: errors.New("detail response has no data")}
	}
	return env.Data, nil
}

// Ping implements API by fetching a single job.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchPage(ctx, models.ResourceJobs, 1, 1)
	return err
}

// call performs a GET with retries and decodes the envelope.
func (c *Client) call(ctx context.Context, resource models.SyncResource, call, path string, q url.Values) (*envelope, error) {
	start := time.Now()
	env, err := c.doCall(ctx, path, q)
	metrics.RecordUpstreamCall(string(resource), call, time.Since(start), err)
	return env, err
}

func (c *Client) doCall(ctx context.Context, path string, q url.Values) (*envelope, error) {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	body, err := c.getWithRetry(ctx, path, reqURL)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &RequestError{Kind: ErrProtocol, Path: path, Err: fmt.Errorf("decode envelope: %w", err), Body: excerpt(body)}
	}
	if env.Type != "success" {
		msg := env.Message.Trimmed()
		if msg == "" {
			msg = "envelope type " + strconv.Quote(env.Type)
		}
		return nil, &RequestError{Kind: ErrProtocol, Path: path, Err: errors.New(msg)}
	}
	return &env, nil
}

// getWithRetry executes the GET. 429 responses are waited out up to rateLimitRetries
// times; 5xx responses and transport failures are retried up to maxRetries times with
// retryBaseDelay * 2^n backoff. The two budgets are independent.
func (c *Client) getWithRetry(ctx context.Context, path, reqURL string) ([]byte, error) {
	stats := statsFrom(ctx)
	var serverRetries, rateLimitHits, attempts int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attempts++
		stats.addRequest()
		status, header, body, err := c.do(ctx, reqURL)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if serverRetries >= c.maxRetries {
				return nil, &RequestError{Kind: ErrNetwork, Path: path, Attempts: attempts, Err: err}
			}
			delay := c.backoff(serverRetries)
			serverRetries++
			c.noteRetry(ctx, stats, "network", path, delay, err)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case status == http.StatusTooManyRequests:
			stats.addRateLimit()
			metrics.UpstreamRateLimited.WithLabelValues(resourceLabel(path)).Inc()
			if rateLimitHits >= c.rateLimitRetries {
				return nil, &RequestError{Kind: ErrRateLimitExceeded, Path: path, StatusCode: status, Attempts: attempts}
			}
			delay, ok := parseRetryAfter(header.Get("Retry-After"), c.now())
			if !ok {
				delay = c.backoff(rateLimitHits)
			}
			if c.maxRetryAfter > 0 && delay > c.maxRetryAfter {
				delay = c.maxRetryAfter
			}
			rateLimitHits++
			c.noteRetry(ctx, stats, "rate_limit", path, delay, nil)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case status >= http.StatusInternalServerError:
			if serverRetries >= c.maxRetries {
				return nil, &RequestError{Kind: ErrUpstream, Path: path, StatusCode: status, Attempts: attempts, Body: excerpt(body)}
			}
			delay := c.backoff(serverRetries)
			serverRetries++
			c.noteRetry(ctx, stats, "server_error", path, delay, fmt.Errorf("HTTP %d", status))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case status < 200 || status >= 300:
			return nil, &RequestError{Kind: ErrUpstream, Path: path, StatusCode: status, Attempts: attempts, Body: excerpt(body)}

		default:
			return body, nil
		}
	}
}

// do performs one request and reads the whole body.
func (c *Client) do(ctx context.Context, reqURL string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) backoff(n int) time.Duration {
	return c.retryBaseDelay * time.Duration(1<<uint(n))
}

func (c *Client) noteRetry(ctx context.Context, stats *CallStats, reason, path string, delay time.Duration, cause error) {
	stats.addRetry()
	metrics.UpstreamRetries.WithLabelValues(reason).Inc()
	ev := logging.Ctx(ctx).Warn().Str("reason", reason).Str("path", path).Dur("retry_in", delay)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("upstream call retrying")
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// resourceLabel derives a metric label from a request path.
func resourceLabel(path string) string {
	if strings.HasPrefix(path, "/api/organization") {
		return string(models.ResourceOrganizations)
	}
	return string(models.ResourceJobs)
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBodySize {
		s = s[:maxErrorBodySize] + "..."
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
