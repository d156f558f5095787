package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

const (
	defaultBaseURL     = "https://api.kie.ai/api/v1"
	defaultHTTPTimeout = 90 * time.Second
	userAgent          = "reelsmith/1.0"
)

// Client talks to the kie.ai task API used for reference images and scene
// videos.
type Client struct {
	apiKey       string
	baseURL      string
	imageModel   string
	videoModel   string
	aspectRatio  string
	pollInterval time.Duration
	imageTimeout time.Duration
	videoTimeout time.Duration
	downloadTTL  time.Duration

	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollInterval overrides the task polling cadence (useful for tests).
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithLogger attaches a logger for polling progress.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client from generation settings.
func New(cfg config.Generation, opts ...Option) *Client {
	c := &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		imageModel:   strings.TrimSpace(cfg.ImageModel),
		videoModel:   strings.TrimSpace(cfg.VideoModel),
		aspectRatio:  strings.TrimSpace(cfg.AspectRatio),
		pollInterval: cfg.PollInterval(),
		imageTimeout: cfg.ImageTimeout(),
		videoTimeout: cfg.VideoTimeout(),
		downloadTTL:  cfg.DownloadTimeout(),
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logging.NewNop(),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 10 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper: {"code":200,"msg":"success","data":{...}}.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("kie request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// HealthCheck verifies the API key by reading the account credit balance.
func (c *Client) HealthCheck(ctx context.Context) error {
	var credits json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/chat/credit", nil, nil, &credits, "credit check"); err != nil {
		return err
	}
	return nil
}

// call performs one request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any, op string) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "", "kie "+op, "api key required", nil)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, "", "kie "+op, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "kie "+op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return classifyTransport(op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(op, resp.StatusCode, &httpStatusError{StatusCode: resp.StatusCode, Body: snippet(payload)})
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return services.Wrap(services.ErrTransient, "", "kie "+op, "decode response", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return classifyStatus(op, env.Code, fmt.Errorf("kie api code %d: %s", env.Code, strings.TrimSpace(env.Msg)))
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return services.Wrap(services.ErrTransient, "", "kie "+op, "decode data", err)
	}
	return nil
}

// poll invokes check every poll interval until it reports completion, fails
// permanently, or the deadline passes. Transient check failures keep polling.
func (c *Client) poll(ctx context.Context, timeout time.Duration, op string, check func(context.Context) (bool, error)) error {
	pollCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		done, err := check(pollCtx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && !services.IsTransient(err):
			if ctx.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
				return timeoutError(op, timeout, lastErr)
			}
			return err
		case err != nil:
			lastErr = err
			c.logger.Debug("kie poll attempt failed",
				logging.String("operation", op),
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollCtx.Done():
			return timeoutError(op, timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func timeoutError(op string, timeout time.Duration, lastErr error) error {
	return services.Wrap(services.ErrTimeout, "", "kie "+op, fmt.Sprintf("task did not finish within %s", timeout), lastErr)
}

// classifyStatus maps an HTTP status or vendor code onto the failure taxonomy.
// 408, 429, 455 (service unavailable) and 5xx are transient; the rest,
// including 401/402 credential and credit problems and 422 content
// rejections, are permanent.
func classifyStatus(op string, code int, err error) error {
	message := fmt.Sprintf("status %d", code)
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code == 455, code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "", "kie "+op, message, err)
	default:
		return services.Wrap(services.ErrPermanent, "", "kie "+op, message, err)
	}
}

func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", "kie "+op, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "", "kie "+op, "network timeout", err)
	}
	return services.Wrap(services.ErrTransient, "", "kie "+op, "request failed", err)
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 240 {
		return text[:240] + "..."
	}
	return text
}
