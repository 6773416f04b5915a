// HTTP core shared by the platform clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

const (
	DefaultTimeout = 20 * time.Second
	// longest error body kept on a [StatusError]
	maxErrorBody = 512
)

// StatusError is a non-2xx answer from a platform API.
//
// It matches [shared.ErrAPIRequest] with errors.Is, and additionally [shared.ErrUnauthorized] for 401s.
type StatusError struct {
	Platform models.Platform
	Method   string
	URL      string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %s %s: status %d", e.Platform.DisplayName(), e.Method, e.URL, e.Code)
}

// StatusCode implements [shared.StatusCoder].
func (e *StatusError) StatusCode() int { return e.Code }

func (e *StatusError) Unwrap() []error {
	if e.Code == http.StatusUnauthorized {
		return []error{shared.ErrAPIRequest, shared.ErrUnauthorized}
	}
	return []error{shared.ErrAPIRequest}
}

// IsUnauthorized reports whether err is a 401 from a platform.
func IsUnauthorized(err error) bool {
	return errors.Is(err, shared.ErrUnauthorized)
}

// Option configures a platform client.
type Option func(*settings)

type settings struct {
	client  *http.Client
	timeout time.Duration
	retry   shared.RetryPolicy
	logger  *log.Logger

	// endpoint overrides, used by tests
	baseURL   string
	searchURL string
	legacyURL string
	authURL   string
	tokenURL  string
}

func newSettings(opts []Option) settings {
	s := settings{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		retry:   shared.DefaultRetryPolicy(),
		logger:  shared.NopLogger(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithHTTPClient replaces the default [http.Client].
func WithHTTPClient(c *http.Client) Option { return func(s *settings) { s.client = c } }

// WithTimeout bounds every single request attempt.
func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithRetryPolicy sets how transient failures are retried.
func WithRetryPolicy(p shared.RetryPolicy) Option { return func(s *settings) { s.retry = p } }

func WithLogger(l *log.Logger) Option { return func(s *settings) { s.logger = l } }

// WithBaseURL points the client's REST calls at another host.
func WithBaseURL(u string) Option { return func(s *settings) { s.baseURL = u } }

// WithSearchURLs overrides the primary and legacy search endpoints.
func WithSearchURLs(primary, legacy string) Option {
	return func(s *settings) {
		s.searchURL = primary
		s.legacyURL = legacy
	}
}

// WithOAuthURLs overrides the authorize and token endpoints.
func WithOAuthURLs(authURL, tokenURL string) Option {
	return func(s *settings) {
		s.authURL = authURL
		s.tokenURL = tokenURL
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// apiClient performs authenticated JSON requests with a per-attempt timeout and retries.
type apiClient struct {
	platform models.Platform
	scheme   string // Authorization scheme, "Bearer" or "OAuth"
	http     *http.Client
	timeout  time.Duration
	retry    shared.RetryPolicy
	logger   *log.Logger
}

func newAPIClient(platform models.Platform, scheme string, s settings) *apiClient {
	return &apiClient{
		platform: platform,
		scheme:   scheme,
		http:     s.client,
		timeout:  s.timeout,
		retry:    s.retry,
		logger:   s.logger,
	}
}

// do sends method url with token, JSON-encoding body when non-nil and decoding the answer into out when non-nil.
//
// Timeouts, 429s and 5xx answers are retried under the client's [shared.RetryPolicy], except for POST,
// which creates resources and is sent once. Every other non-2xx answer is returned at once as a
// [*StatusError]. Each attempt first passes the context's [shared.AttemptGate], if any.
func (c *apiClient) do(ctx context.Context, method, url, token string, body, out any) error {
	return c.doTimeout(ctx, c.timeout, method, url, token, body, out)
}

func (c *apiClient) doTimeout(ctx context.Context, timeout time.Duration, method, url, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	policy := c.retry
	if method == http.MethodPost {
		policy.Attempts = 1
	}

	return shared.Retry(ctx, policy, func(ctx context.Context) error {
		done, err := shared.AcquireAttempt(ctx)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			done(false)
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", c.scheme+" "+token)
		}

		resp, err := c.http.Do(req)
		done(err == nil || !errors.Is(err, context.Canceled))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %w: %w", shared.ErrAPIRequest, shared.ErrTimeout, err)
			}
			return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			c.logger.Debug("platform request failed", "platform", c.platform, "method", method, "status", resp.StatusCode)
			return &StatusError{
				Platform: c.platform,
				Method:   method,
				URL:      req.URL.Redacted(),
				Code:     resp.StatusCode,
				Body:     string(snippet),
			}
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
		}
		return nil
	})
}

// statusCode extracts the HTTP status from a [*StatusError] in err's chain.
func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
