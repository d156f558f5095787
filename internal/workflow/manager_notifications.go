package workflow

import (
	"context"
	"errors"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
)

func (m *Manager) notifyCompleted(ctx context.Context, j *job.Job) {
	m.publish(ctx, notifications.EventJobCompleted, notifications.Payload{
		"job_id":   j.ID,
		"prompt":   j.Prompt,
		"scenes":   j.SceneCount,
		"artifact": j.FinalArtifact.Location,
	})
}

func (m *Manager) notifyFailed(ctx context.Context, j *job.Job) {
	payload := notifications.Payload{"job_id": j.ID, "prompt": j.Prompt}
	if j.Failure != nil {
		payload["stage"] = string(j.Failure.Stage)
		payload["kind"] = string(j.Failure.Kind)
		payload["error"] = j.Failure.Detail
	}
	m.publish(ctx, notifications.EventJobFailed, payload)
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification")
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
