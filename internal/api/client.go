package api

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
	"time"
)

// ErrUnavailable is returned when no API bind address is configured.
var ErrUnavailable = errors.New("daemon api not configured")

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
	RequestID  string
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, msg)
}

// StatusCode reports the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient builds a client for bind, which may be host:port or a full URL.
func NewClient(bind, token string, opts ...ClientOption) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	c := &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out, err
}

// Job fetches one job view.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out.Job, err
}

// Jobs lists jobs, optionally filtered by state.
func (c *Client) Jobs(ctx context.Context, states ...string) ([]Job, error) {
	query := url.Values{}
	for _, state := range states {
		if state = strings.TrimSpace(state); state != "" {
			query.Add("state", state)
		}
	}
	var out JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &out)
	return out.Items, err
}

// Artifact returns the deliverable handle of a DONE job.
func (c *Client) Artifact(ctx context.Context, id string) (ArtifactResponse, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/artifact", nil, nil, &out)
	return out, err
}

// DownloadArtifact streams the deliverable bytes of a DONE job into w.
func (c *Client) DownloadArtifact(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/artifact/file", nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// Cancel asks the daemon to stop a running job.
func (c *Client) Cancel(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out.Job, err
}

// Delete removes a finished job and its files from the daemon.
func (c *Client) Delete(ctx context.Context, id string) (DeleteResponse, error) {
	var out DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// TestNotification asks the daemon to publish a test notification.
func (c *Client) TestNotification(ctx context.Context) (NotifyResponse, error) {
	var out NotifyResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
			apiErr.RequestID = payload.RequestID
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return resp, nil
}
