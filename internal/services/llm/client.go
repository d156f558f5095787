package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/services"
)

const (
	defaultEndpoint     = "https://api.openai.com/v1/chat/completions"
	defaultTimeout      = 60 * time.Second
	defaultAttempts     = 3
	defaultBackoffBase  = time.Second
	defaultBackoffLimit = 10 * time.Second
	snippetLimit        = 160
)

// Config captures the runtime settings required to talk to the LLM. BaseURL
// is the full chat completions endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	RetryAttempts  int
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	http        *http.Client
	temperature float64
	maxTokens   int

	attempts     int
	backoffBase  time.Duration
	backoffLimit time.Duration
	sleep        func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTemperature sets the sampling temperature (defaults to 0).
func WithTemperature(temperature float64) Option {
	return func(c *Client) {
		if temperature >= 0 {
			c.temperature = temperature
		}
	}
}

// WithMaxTokens caps the completion length. Zero leaves it to the provider.
func WithMaxTokens(tokens int) Option {
	return func(c *Client) {
		if tokens >= 0 {
			c.maxTokens = tokens
		}
	}
}

// WithRetryMaxAttempts sets the total number of attempts per request.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.attempts = attempts
	}
}

// WithRetryBackoff sets the first retry delay and the cap for later ones.
func WithRetryBackoff(base, limit time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffLimit = limit
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		endpoint:     strings.TrimSpace(cfg.BaseURL),
		model:        strings.TrimSpace(cfg.Model),
		http:         &http.Client{Timeout: timeout},
		attempts:     cfg.RetryAttempts,
		backoffBase:  defaultBackoffBase,
		backoffLimit: defaultBackoffLimit,
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	return c
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content   string `json:"content"`
			Refusal   string `json:"refusal"`
			ToolCalls []struct {
				Function struct {
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// content returns the first non-empty message body, falling back to tool
// call arguments for providers that answer JSON mode through a function call.
func (r chatResponse) content() (text, finish, refusal string) {
	for _, choice := range r.Choices {
		if finish == "" {
			finish = choice.FinishReason
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if body := strings.TrimSpace(choice.Message.Content); body != "" {
			return body, finish, refusal
		}
		for _, call := range choice.Message.ToolCalls {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				return args, finish, refusal
			}
		}
	}
	return "", finish, refusal
}

// statusError is a non-2xx reply from the endpoint.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

// emptyError is a 2xx reply that carried no usable completion.
type emptyError struct {
	finish  string
	refusal string
	body    string
}

func (e *emptyError) Error() string {
	return fmt.Sprintf("empty completion (finish_reason=%q, refusal=%q, response=%s)", e.finish, e.refusal, e.body)
}

// CompleteJSON issues a JSON-only chat completion and returns the raw payload.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const op = "llm complete"
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "" || userPrompt == "":
		return "", services.Wrap(services.ErrValidation, "", op, "system and user prompts required", nil)
	case c.apiKey == "":
		return "", services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}
	return c.complete(ctx, op, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
}

// HealthCheck issues a minimal completion to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "llm health"
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}
	content, err := c.complete(ctx, op, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: `Respond with {"ok":true}`},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !parsed.OK {
		return errors.New(op + ": unexpected response")
	}
	return nil
}

// complete retries transient failures within the attempt budget. The returned
// error is classified.
func (c *Client) complete(ctx context.Context, op string, req chatRequest) (string, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		content, err := c.send(ctx, encoded)
		if err == nil {
			return content, nil
		}
		lastErr = classify(op, err)
		if attempt == c.attempts || !retryable(lastErr) || ctx.Err() != nil {
			break
		}
		if err := c.wait(ctx, c.delay(attempt, err)); err != nil {
			return "", err
		}
	}
	if c.attempts > 1 {
		return "", fmt.Errorf("%s: gave up after %d attempts: %w", op, c.attempts, lastErr)
	}
	return "", lastErr
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{
			code:       resp.StatusCode,
			body:       snippet(string(raw)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(parsed.Error.Message)}
	}
	text, finish, refusal := parsed.content()
	if text == "" {
		return "", &emptyError{finish: finish, refusal: refusal, body: snippet(string(raw))}
	}
	return text, nil
}

// delay doubles from the base delay per attempt, capped at the limit. A
// Retry-After header takes precedence.
func (c *Client) delay(attempt int, err error) time.Duration {
	var status *statusError
	if errors.As(err, &status) && status.retryAfter > 0 {
		return min(status.retryAfter, c.backoffLimit)
	}
	if c.backoffBase <= 0 {
		return 0
	}
	d := c.backoffBase
	for i := 1; i < attempt && d < c.backoffLimit; i++ {
		d *= 2
	}
	if c.backoffLimit > 0 && d > c.backoffLimit {
		d = c.backoffLimit
	}
	return d
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if c.sleep != nil {
		c.sleep(d)
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

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

// classify tags a completion failure. 408, 429 and 5xx replies, timeouts,
// transport errors and empty completions are transient; refusals and other
// HTTP rejections are permanent.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", op, "deadline exceeded", err)
	}
	var status *statusError
	if errors.As(err, &status) {
		detail := "http " + strconv.Itoa(status.code)
		if status.code == http.StatusRequestTimeout || status.code == http.StatusTooManyRequests || status.code >= http.StatusInternalServerError {
			return services.Wrap(services.ErrTransient, "", op, detail, err)
		}
		return services.Wrap(services.ErrPermanent, "", op, detail, err)
	}
	var empty *emptyError
	if errors.As(err, &empty) {
		if empty.refusal != "" {
			return services.Wrap(services.ErrPermanent, "", op, "model refused", err)
		}
		return services.Wrap(services.ErrTransient, "", op, "empty completion", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "", op, "network timeout", err)
	}
	return services.Wrap(services.ErrTransient, "", op, "", err)
}

func retryable(err error) bool {
	return services.IsTransient(err) || errors.Is(err, services.ErrTimeout)
}

// DecodeJSON decodes a model reply into target. Replies wrapped in prose or
// markdown code fences are trimmed to the outermost JSON object or array.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(trimmed), target)
	if err == nil {
		return nil
	}
	extracted := extractJSON(trimmed)
	if extracted == "" || extracted == trimmed {
		return fmt.Errorf("%w (payload: %s)", err, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(extracted), target); err != nil {
		return fmt.Errorf("%w (payload: %s)", err, snippet(extracted))
	}
	return nil
}

func extractJSON(content string) string {
	if start := strings.Index(content, "```"); start >= 0 {
		body := content[start+3:]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		body = strings.TrimSpace(body)
		if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
			body = strings.TrimSpace(body[4:])
		}
		content = body
	}
	for _, pair := range [...]string{"{}", "[]"} {
		start := strings.IndexByte(content, pair[0])
		end := strings.LastIndexByte(content, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(content[start : end+1])
		}
	}
	return strings.TrimSpace(content)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
