package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/version"
)

const maxBodyBytes = 4 * 1024 * 1024

// ClientOptions tunes the shared HTTP client.
type ClientOptions struct {
	Timeout             time.Duration
	ThrottleWait        time.Duration
	MaxThrottleRetries  int
	MaxTransientRetries int
	TransientBackoff    time.Duration
	UserAgent           string
}

// DefaultClientOptions returns conservative defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:             15 * time.Second,
		ThrottleWait:        5 * time.Second,
		MaxThrottleRetries:  5,
		MaxTransientRetries: 2,
		TransientBackoff:    500 * time.Millisecond,
		UserAgent:           version.UserAgent(),
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithSleeper replaces the wait used for throttle and transient backoff.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Request is one GET against a source.
type Request struct {
	URL    string
	Header http.Header
	Auth   Authenticator
	// Throttled reports a rate limit error carried inside a 2xx body. Such
	// responses are waited out and retried like a 429.
	Throttled func(body []byte) bool
}

// Client performs rate-limited GET requests shared by all adapters. It waits
// on the per-source limiter before every attempt, sleeps through throttling
// responses (429, 503 or a body flagged by Request.Throttled), refreshes
// credentials once on 401 and retries transient failures a bounded number of
// times.
type Client struct {
	http    *http.Client
	limiter *RateLimiterMap
	logger  *slog.Logger
	opts    ClientOptions
	sleep   Sleeper
	now     func() time.Time
}

// NewClient creates a Client.
func NewClient(limiter *RateLimiterMap, opts ClientOptions, logger *slog.Logger, options ...ClientOption) *Client {
	def := DefaultClientOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ThrottleWait <= 0 {
		opts.ThrottleWait = def.ThrottleWait
	}
	if opts.MaxThrottleRetries < 0 {
		opts.MaxThrottleRetries = 0
	}
	if opts.MaxTransientRetries < 0 {
		opts.MaxTransientRetries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if limiter == nil {
		limiter = NewRateLimiterMap()
	}
	c := &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		logger:  logging.ForComponent(logger, "http-client"),
		opts:    opts,
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Limiter returns the shared limiter map.
func (c *Client) Limiter() *RateLimiterMap { return c.limiter }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get fetches req.URL for source and returns the response body.
func (c *Client) Get(ctx context.Context, source ProviderName, req Request) ([]byte, error) {
	log := c.logger.With(slog.String(logging.KeySource, string(source)))
	throttled, transient := 0, 0
	refreshed := false

	for {
		if err := c.limiter.Wait(ctx, source); err != nil {
			return nil, &ErrProviderUnavailable{Provider: source, Cause: fmt.Errorf("rate limiter: %w", err)}
		}

		status, header, body, err := c.do(ctx, source, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var authErr *ErrAuthRequired
			if errors.As(err, &authErr) {
				return nil, err
			}
			transient++
			if transient > c.opts.MaxTransientRetries {
				return nil, &ErrProviderUnavailable{Provider: source, Cause: err}
			}
			log.Warn("transient request failure, retrying",
				slog.Int(logging.KeyAttempt, transient), logging.Err(err))
			if err := c.sleep(ctx, c.opts.TransientBackoff*time.Duration(transient)); err != nil {
				return nil, err
			}
			continue
		}

		throttle := func() error {
			wait := parseRetryAfter(header.Get("Retry-After"), c.now(), c.opts.ThrottleWait)
			throttled++
			if throttled > c.opts.MaxThrottleRetries {
				return &ErrProviderUnavailable{
					Provider:   source,
					Cause:      fmt.Errorf("throttled %d times", throttled),
					RetryAfter: wait,
				}
			}
			log.Info("throttled by upstream, waiting",
				slog.Int("status", status), slog.Duration("retry_after", wait))
			return c.sleep(ctx, wait)
		}

		switch {
		case status >= 200 && status < 300:
			if req.Throttled == nil || !req.Throttled(body) {
				return body, nil
			}
			if err := throttle(); err != nil {
				return nil, err
			}

		case status == http.StatusNotFound:
			return nil, &ErrNotFound{Provider: source, ID: req.URL}

		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			if err := throttle(); err != nil {
				return nil, err
			}

		case status == http.StatusUnauthorized:
			if req.Auth == nil || refreshed {
				return nil, &ErrUnauthorized{Provider: source}
			}
			refreshed = true
			log.Info("credentials rejected, refreshing once")
			if err := req.Auth.Refresh(ctx); err != nil {
				return nil, &ErrUnauthorized{Provider: source}
			}

		case status >= 500:
			transient++
			if transient > c.opts.MaxTransientRetries {
				return nil, &ErrProviderUnavailable{Provider: source, Cause: fmt.Errorf("unexpected status %d", status)}
			}
			log.Warn("upstream server error, retrying",
				slog.Int("status", status), slog.Int(logging.KeyAttempt, transient))
			if err := c.sleep(ctx, c.opts.TransientBackoff*time.Duration(transient)); err != nil {
				return nil, err
			}

		default:
			return nil, &ErrProviderUnavailable{Provider: source, Cause: fmt.Errorf("unexpected status %d", status)}
		}
	}
}

func (c *Client) do(ctx context.Context, source ProviderName, req Request) (int, http.Header, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)

	if req.Auth != nil {
		token, err := req.Auth.Token(ctx)
		if err != nil {
			return 0, nil, nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq) //nolint:gosec // URL constructed from adapter config and validated inputs
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading %s response: %w", source, err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. Missing or
// unparseable values yield fallback; dates in the past yield zero.
func parseRetryAfter(v string, now time.Time, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
