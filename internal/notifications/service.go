package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
)

const userAgent = "Reelsmith-Go/0.1.0"

// Event identifies a workflow milestone worth telling the operator about.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries the values a message template needs.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.JobCompleted,
			EventJobFailed:    cfg.Notifications.JobFailed,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Video ready: %s", payloadString(payload, "prompt"))
		if scenes := payloadString(payload, "scenes"); scenes != "" {
			body += fmt.Sprintf(" (%s scenes)", scenes)
		}
		if file := payloadString(payload, "artifact"); file != "" {
			body += "\nFile: " + file
		}
		return message{
			title: "Reelsmith - Video Ready",
			body:  body,
			tags:  []string{"reelsmith", "job", "completed"},
		}, true
	case EventJobFailed:
		var b strings.Builder
		b.WriteString("❌ Job ")
		b.WriteString(payloadString(payload, "job_id"))
		if stage := payloadString(payload, "stage"); stage != "" {
			b.WriteString(" failed during ")
			b.WriteString(stage)
		} else {
			b.WriteString(" failed")
		}
		if kind := payloadString(payload, "kind"); kind != "" {
			b.WriteString(" (")
			b.WriteString(kind)
			b.WriteString(")")
		}
		if detail := payloadString(payload, "error"); detail != "" {
			b.WriteString(": ")
			b.WriteString(detail)
		}
		return message{
			title:    "Reelsmith - Job Failed",
			body:     b.String(),
			tags:     []string{"reelsmith", "job", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Reelsmith - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelsmith", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
