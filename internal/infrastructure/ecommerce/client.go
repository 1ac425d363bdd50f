// Package ecommerce holds the outbound side of marketplace integrations: the
// rate-limited retrying HTTP client and the marketplace adapters built on it.
package ecommerce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Retry reasons reported to ClientObserver
const (
	RetryReasonUnauthorized = "unauthorized"
	RetryReasonRateLimited  = "rate_limited"
	RetryReasonTransient    = "transient"
)

// TokenSource is the slice of the token lifecycle manager the client depends on
type TokenSource interface {
	GetValidToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (string, error)
	// RefreshAfterUnauthorized returns a token different from rejectedToken, refreshing at most once
	RefreshAfterUnauthorized(ctx context.Context, key integration.Key, rejectedToken string) (string, error)
	// Reject marks the credential invalid (terminal)
	Reject(ctx context.Context, key integration.Key, reason string) error
}

// ClientObserver receives client retry and pacing events (metrics)
type ClientObserver interface {
	RecordClientRetry(ctx context.Context, key integration.Key, reason string)
	RecordRateLimitWait(ctx context.Context, key integration.Key, wait time.Duration)
}

// ClientConfig holds the retry and pacing policy of the client
type ClientConfig struct {
	// BaseURL is prefixed to every request path
	BaseURL string
	// TimeoutSeconds is the per-request HTTP timeout
	TimeoutSeconds int
	// LowWaterMark: at or below this remaining quota, calls wait for the window reset
	LowWaterMark int
	// MaxRateLimitWait bounds any single wait for a window reset or Retry-After
	MaxRateLimitWait time.Duration
	// MaxRateLimitAttempts bounds sends answered with 429
	MaxRateLimitAttempts int
	// MaxTransientAttempts bounds sends that failed with a network error or 5xx
	MaxTransientAttempts int
	// InitialBackoff and MaxBackoff shape the exponential backoff used for transient failures
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After
	DefaultRetryAfter time.Duration
	UserAgent         string
}

// DefaultClientConfig returns the default client policy
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		TimeoutSeconds:       30,
		LowWaterMark:         integration.DefaultLowWaterMark,
		MaxRateLimitWait:     2 * time.Minute,
		MaxRateLimitAttempts: 3,
		MaxTransientAttempts: 4,
		InitialBackoff:       500 * time.Millisecond,
		MaxBackoff:           15 * time.Second,
		DefaultRetryAfter:    5 * time.Second,
		UserAgent:            "marketsync/1.0",
	}
}

// Validate validates the configuration and fills unset optional values
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("ecommerce: base url is required")
	}
	if c.MaxRateLimitAttempts < 1 {
		return errors.New("ecommerce: max rate limit attempts must be at least 1")
	}
	if c.MaxTransientAttempts < 1 {
		return errors.New("ecommerce: max transient attempts must be at least 1")
	}
	if c.MaxRateLimitWait <= 0 {
		return errors.New("ecommerce: max rate limit wait must be positive")
	}
	if c.LowWaterMark < 0 {
		c.LowWaterMark = 0
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 5 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// Request is one outbound marketplace call
type Request struct {
	Method string
	// Path is relative to ClientConfig.BaseURL
	Path  string
	Query url.Values
	Body  []byte
	// Idempotent opts a write into automatic retries; reads are always idempotent
	Idempotent bool
}

// NewGetRequest creates an idempotent GET request
func NewGetRequest(path string, query url.Values) *Request {
	return &Request{Method: http.MethodGet, Path: path, Query: query, Idempotent: true}
}

func (r *Request) retryable() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return r.Idempotent
}

// Response is a fully read marketplace response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryingClient sends marketplace requests with token injection, quota pacing and
// the retry policy for 401, 429, 5xx and network failures. It is the only place
// that retries marketplace calls.
type RetryingClient struct {
	config     ClientConfig
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
	observer   ClientObserver
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	windows map[integration.Key]*integration.RateLimitWindow
}

// ClientOption configures a RetryingClient
type ClientOption func(*RetryingClient)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *RetryingClient) {
		c.httpClient = hc
	}
}

// WithClientObserver reports retries and waits
func WithClientObserver(o ClientObserver) ClientOption {
	return func(c *RetryingClient) {
		c.observer = o
	}
}

// WithClientClock overrides time.Now and the wait function
func WithClientClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *RetryingClient) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewRetryingClient creates a RetryingClient
func NewRetryingClient(config ClientConfig, tokens TokenSource, logger *zap.Logger, opts ...ClientOption) (*RetryingClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("ecommerce: token source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RetryingClient{
		config:     config,
		httpClient: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
		tokens:     tokens,
		logger:     logger.Named("marketplace_client"),
		now:        time.Now,
		sleep:      sleepContext,
		windows:    make(map[integration.Key]*integration.RateLimitWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends req on behalf of (tenantID, marketplace).
//
// A 401 refreshes the token and retries once; a second 401 invalidates the credential and
// returns *AuthenticationError. Retryable requests are retried on 429 (honouring Retry-After)
// and on network errors or 5xx (exponential backoff with jitter), returning
// *RateLimitExceededError or *TransientNetworkError when the budget is spent. Other 4xx
// responses return *RequestError.
func (c *RetryingClient) Do(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, req *Request) (*Response, error) {
	key := integration.NewKey(tenantID, marketplace)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if req == nil || req.Method == "" {
		return nil, errors.New("ecommerce: request method is required")
	}

	token, err := c.tokens.GetValidToken(ctx, tenantID, marketplace)
	if err != nil {
		return nil, err
	}

	retryable := req.retryable()
	refreshed := false
	rateLimited := 0
	transient := 0
	bo := c.newBackoff()

	for {
		if err := c.awaitWindow(ctx, key); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, key, req, token)
		if err != nil {
			transient++
			if ctx.Err() != nil || !retryable || transient >= c.config.MaxTransientAttempts {
				return nil, &integration.TransientNetworkError{Key: key, Attempts: transient, Err: err}
			}
			if err := c.backoffWait(ctx, key, bo, req, err); err != nil {
				return nil, &integration.TransientNetworkError{Key: key, Attempts: transient, Err: err}
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				if rejectErr := c.tokens.Reject(ctx, key, "access token refused after refresh"); rejectErr != nil {
					c.logger.Error("Failed to mark credential invalid", zap.String("key", key.String()), zap.Error(rejectErr))
				}
				return nil, &integration.AuthenticationError{
					Key:    key,
					Reason: fmt.Sprintf("%s %s returned 401 after token refresh", req.Method, req.Path),
				}
			}
			refreshed = true
			c.observeRetry(ctx, key, RetryReasonUnauthorized)
			token, err = c.tokens.RefreshAfterUnauthorized(ctx, key, token)
			if err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimited++
			wait := c.retryAfter(resp.Header)
			if !retryable || rateLimited >= c.config.MaxRateLimitAttempts || wait > c.config.MaxRateLimitWait {
				return nil, &integration.RateLimitExceededError{Key: key, Attempts: rateLimited, RetryAfter: wait}
			}
			c.observeRetry(ctx, key, RetryReasonRateLimited)
			c.logger.Warn("Marketplace throttled request",
				zap.String("key", key.String()),
				zap.String("path", req.Path),
				zap.Int("attempt", rateLimited),
				zap.Duration("retry_after", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, &integration.RateLimitExceededError{Key: key, Attempts: rateLimited, RetryAfter: wait}
			}

		case resp.StatusCode >= http.StatusInternalServerError:
			transient++
			statusErr := fmt.Errorf("%s %s returned status %d", req.Method, req.Path, resp.StatusCode)
			if !retryable || transient >= c.config.MaxTransientAttempts {
				return nil, &integration.TransientNetworkError{Key: key, Attempts: transient, StatusCode: resp.StatusCode, Err: statusErr}
			}
			if err := c.backoffWait(ctx, key, bo, req, statusErr); err != nil {
				return nil, &integration.TransientNetworkError{Key: key, Attempts: transient, StatusCode: resp.StatusCode, Err: err}
			}

		case resp.StatusCode >= http.StatusBadRequest:
			return nil, &integration.RequestError{
				Method:     req.Method,
				Path:       req.Path,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(resp.Body), 512),
			}

		default:
			return resp, nil
		}
	}
}

// Window returns a copy of the tracked quota window for key
func (c *RetryingClient) Window(key integration.Key) integration.RateLimitWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[key]; ok {
		return *w
	}
	return integration.RateLimitWindow{}
}

// awaitWindow blocks while the key's remaining quota is at or below the low-water mark
// and reserves one request from the window once sending is allowed.
func (c *RetryingClient) awaitWindow(ctx context.Context, key integration.Key) error {
	for {
		c.mu.Lock()
		w, ok := c.windows[key]
		if !ok {
			w = &integration.RateLimitWindow{}
			c.windows[key] = w
		}
		wait := w.WaitFor(c.config.LowWaterMark, c.now())
		if wait <= 0 {
			w.Consume()
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		if wait > c.config.MaxRateLimitWait {
			return &integration.RateLimitExceededError{Key: key, RetryAfter: wait}
		}
		if c.observer != nil {
			c.observer.RecordRateLimitWait(ctx, key, wait)
		}
		c.logger.Debug("Quota low, waiting for window reset",
			zap.String("key", key.String()),
			zap.Duration("wait", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return &integration.TransientNetworkError{Key: key, Err: fmt.Errorf("waiting for rate limit reset: %w", err)}
		}
	}
}

func (c *RetryingClient) send(ctx context.Context, key integration.Key, req *Request, token string) (*Response, error) {
	target := c.config.BaseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.updateWindow(key, resp.Header)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// updateWindow replaces the key's window with the quota reported in h.
// Responses without quota headers leave the window untouched.
func (c *RetryingClient) updateWindow(key integration.Key, h http.Header) {
	remaining, ok := headerInt(h, "X-RateLimit-Remaining", "RateLimit-Remaining")
	if !ok {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	w, exists := c.windows[key]
	if !exists {
		w = &integration.RateLimitWindow{}
		c.windows[key] = w
	}
	w.Known = true
	w.Remaining = remaining
	if limit, ok := headerInt(h, "X-RateLimit-Limit", "RateLimit-Limit"); ok {
		w.Limit = limit
	}
	if reset, ok := headerInt(h, "X-RateLimit-Reset", "RateLimit-Reset"); ok {
		w.ResetAt = resetTime(int64(reset), now)
	}
}

// retryAfter reads Retry-After as delta seconds or an HTTP date
func (c *RetryingClient) retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return c.config.DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(c.now()); d > 0 {
			return d
		}
		return 0
	}
	return c.config.DefaultRetryAfter
}

func (c *RetryingClient) backoffWait(ctx context.Context, key integration.Key, bo backoff.BackOff, req *Request, cause error) error {
	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		return cause
	}
	c.observeRetry(ctx, key, RetryReasonTransient)
	c.logger.Warn("Marketplace request failed, backing off",
		zap.String("key", key.String()),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Duration("backoff", wait),
		zap.Error(cause),
	)
	if err := c.sleep(ctx, wait); err != nil {
		return fmt.Errorf("%w (backoff interrupted: %v)", cause, err)
	}
	return nil
}

func (c *RetryingClient) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialBackoff
	if c.config.MaxBackoff > 0 {
		b.MaxInterval = c.config.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *RetryingClient) observeRetry(ctx context.Context, key integration.Key, reason string) {
	if c.observer != nil {
		c.observer.RecordClientRetry(ctx, key, reason)
	}
}

// resetTime accepts either a unix timestamp or a delta in seconds
func resetTime(v int64, now time.Time) time.Time {
	if v > 1_000_000_000 {
		return time.Unix(v, 0)
	}
	return now.Add(time.Duration(v) * time.Second)
}

func headerInt(h http.Header, names ...string) (int, bool) {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
