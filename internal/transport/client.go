// Package transport executes single request/response exchanges against the
// property-management API and classifies every failure.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/metrics"
	"github.com/propmanage/propsync/internal/model"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8080/api"
	DefaultTimeout = 30 * time.Second
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Session    *Session
	// Timeout bounds one Send call including its retries.
	Timeout time.Duration
	// MaxRetries applies to idempotent methods only. Zero means the default
	// of 3; a negative value disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RateLimit caps outgoing requests per second when positive.
	RateLimit float64
	Burst     int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	session := opts.Session
	if session == nil {
		session = NewSession()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = 3
	case maxRetries < 0:
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		session:    session,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		limiter:    limiter,
		logger:     logging.OrNop(opts.Logger).Named("transport"),
		metrics:    opts.Metrics,
	}
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs one logical exchange. Every error it returns is an *Error.
func (c *Client) Send(ctx context.Context, method, path string, body any, query Query) (*model.Envelope, error) {
	started := time.Now()
	env, err := c.send(ctx, method, path, body, query)
	outcome := "ok"
	if te, ok := AsError(err); ok {
		outcome = string(te.Kind)
	}
	c.metrics.ObserveTransport(method, outcome, time.Since(started))
	return env, err
}

func (c *Client) send(ctx context.Context, method, path string, body any, query Query) (*model.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if encoded := query.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: "request body cannot be encoded", Err: err}
		}
	}
	retries := c.maxRetries
	if !idempotent(method) {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.networkError(ctx, err)
			}
		}
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid request: %v", err), Err: err}
		}
		token := c.session.Token()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		correlation := correlationID()
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Correlation-Id", correlation)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < retries && ctx.Err() == nil {
				c.metrics.TransportRetry(method)
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, c.networkError(ctx, waitErr)
				}
				continue
			}
			return nil, c.networkError(ctx, err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, c.networkError(ctx, readErr)
		}
		c.logger.Debug("remote call",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt),
			zap.String("correlation_id", correlation),
		)

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return decodeEnvelope(resp, payload)
		}

		if retryableStatus(resp.StatusCode) && attempt < retries {
			c.metrics.TransportRetry(method)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, c.networkError(ctx, waitErr)
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized && c.session.clearIfToken(token) {
			c.logger.Info("session cleared after unauthorized response", zap.String("path", path))
		}
		return nil, &Error{
			Kind:    KindHTTP,
			Status:  resp.StatusCode,
			Message: errorMessage(resp, payload),
		}
	}
}

func decodeEnvelope(resp *http.Response, payload []byte) (*model.Envelope, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &model.Envelope{Success: true}, nil
	}
	if err := validateEnvelope(payload); err != nil {
		return nil, err
	}
	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed(err, "response envelope cannot be decoded")
	}
	if !env.Success {
		return nil, &Error{
			Kind:    KindHTTP,
			Status:  resp.StatusCode,
			Message: errorMessage(resp, payload),
		}
	}
	return &env, nil
}

// DecodeData unmarshals the envelope payload into out, reporting a shape
// mismatch as a malformed response.
func DecodeData(env *model.Envelope, out any) error {
	if err := env.Decode(out); err != nil {
		return malformed(err, "response data has an unexpected shape")
	}
	return nil
}

// errorMessage prefers the envelope's error, then its message, then a
// generic status line.
func errorMessage(resp *http.Response, payload []byte) string {
	var errPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if msg := strings.TrimSpace(errPayload.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(errPayload.Message); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (c *Client) networkError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("request timed out after %s", c.timeout), Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Message: "request cancelled", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

func correlationID() string {
	return "psync_" + uuid.NewString()
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	return Backoff(attempt, c.baseDelay, c.maxDelay)
}

// Backoff doubles base for every attempt after the first, capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return min(delay, limit)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
