package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipqueue/client/internal/logging"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() string { return string(s) }

// Response is a successful backend reply.
type Response struct {
	Body       json.RawMessage
	StatusCode int
}

// Decode unmarshals the response body into v.
func (r Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RequestError reports a failed call: either a transport failure
// (StatusCode 0) or any non-200 reply.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("request %s %s resulted in an error with status code %d", e.Method, e.Path, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from a RequestError, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// Client wraps outbound calls to the backend API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLimiter paces outbound calls.
func WithLimiter(l Limiter) Option {
	return func(cl *Client) {
		if l != nil {
			cl.limiter = l
		}
	}
}

// New constructs a Client for the API rooted at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		tokens:  tokens,
		limiter: unlimited{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request performs method against path, JSON-encoding body when present.
// Any reply other than 200 fails with a *RequestError.
func (c *Client) Request(ctx context.Context, method, path string, body any) (Response, error) {
	logger := logging.FromContext(ctx)

	fail := func(status int, err error) (Response, error) {
		reqErr := &RequestError{Method: method, Path: path, StatusCode: status, Err: err}
		logger.Warn("api request failed", "method", method, "path", path, "status", status, "error", err)
		return Response{}, reqErr
	}

	if err := c.limiter.Wait(ctx, method+" "+routeKey(path)); err != nil {
		return fail(0, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fail(0, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.tokens.Token())

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, nil)
	}

	logger.Debug("api request completed", "method", method, "path", path, "status", resp.StatusCode)
	return Response{Body: data, StatusCode: resp.StatusCode}, nil
}

// routeKey collapses path parameters so every email or plan shares one bucket.
func routeKey(path string) string {
	for _, prefix := range []string{
		"/public/account/v3/does_user_exist/",
		"/public/account/password/v2/reset/",
		"/payments/v2/checkout/",
	} {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return path
}
