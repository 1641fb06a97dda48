package pocketbase

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

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/models"
)

const (
	usersCollection     = "users"
	extraDataCollection = "extravideodata"
)

// ResponseError is a non-2xx reply from the realtime store.
type ResponseError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pocketbase %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("pocketbase %s %s: status %d", e.Method, e.Path, e.Status)
}

// HTTPStatus returns the reply's status code.
func (e *ResponseError) HTTPStatus() int { return e.Status }

// UserRecord is a users record with its videos relation expanded.
type UserRecord struct {
	models.UserProfile
	Expand struct {
		Videos []models.VideoRecord `json:"videos"`
	} `json:"expand"`
}

// Videos returns the expanded videos, never nil.
func (r UserRecord) Videos() []models.VideoRecord {
	if r.Expand.Videos == nil {
		return []models.VideoRecord{}
	}
	return r.Expand.Videos
}

// Client talks to the PocketBase realtime store.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	tokens  apiclient.TokenSource
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the client used for plain requests. Streams use a
// copy without a timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c == nil {
			return
		}
		cl.http = c
		stream := *c
		stream.Timeout = 0
		cl.stream = &stream
	}
}

// New constructs a Client for the store rooted at baseURL.
func New(baseURL string, tokens apiclient.TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = apiclient.StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    http.DefaultClient,
		stream:  http.DefaultClient,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthWithPassword exchanges an email and password for a session token.
func (c *Client) AuthWithPassword(ctx context.Context, identity, password string) (string, models.UserProfile, error) {
	var out struct {
		Token  string             `json:"token"`
		Record models.UserProfile `json:"record"`
	}
	path := "/api/collections/" + usersCollection + "/auth-with-password"
	err := c.do(ctx, http.MethodPost, path, map[string]string{
		"identity": identity,
		"password": password,
	}, &out)
	if err != nil {
		return "", models.UserProfile{}, err
	}
	if out.Token == "" || out.Record.ID == "" {
		return "", models.UserProfile{}, errors.New("pocketbase: auth reply missing token or record")
	}
	return out.Token, out.Record, nil
}

// GetUser fetches the user record with its videos expanded.
func (c *Client) GetUser(ctx context.Context, id string) (UserRecord, error) {
	var out UserRecord
	path := "/api/collections/" + usersCollection + "/records/" + url.PathEscape(id) + "?expand=videos"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return UserRecord{}, err
	}
	return out, nil
}

// GetExtraData fetches the AI-generated content record.
func (c *Client) GetExtraData(ctx context.Context, id string) (models.AIContent, error) {
	var out models.AIContent
	path := "/api/collections/" + extraDataCollection + "/records/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return models.AIContent{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pocketbase %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read pocketbase reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		logging.FromContext(ctx).Debug("pocketbase request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &ResponseError{Method: method, Path: path, Status: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode pocketbase reply: %w", err)
	}
	return nil
}
