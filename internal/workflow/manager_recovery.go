package workflow

import (
	"context"
	"fmt"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// Recover fails every job a previous process left mid-pipeline. In-flight
// vendor tasks and in-memory scripts do not survive a restart, so these jobs
// cannot resume.
func (m *Manager) Recover(ctx context.Context) error {
	var active []job.State
	for _, state := range job.AllStates() {
		if !state.Terminal() {
			active = append(active, state)
		}
	}
	stale, err := m.store.List(ctx, active...)
	if err != nil {
		return fmt.Errorf("list interrupted jobs: %w", err)
	}
	for _, j := range stale {
		stage := j.State
		cause := job.FailureCause{
			Stage:  stage,
			Kind:   services.KindInternal,
			Detail: "daemon restarted before the job finished",
		}
		if err := j.Fail(cause, m.now()); err != nil {
			return err
		}
		if err := m.store.Update(ctx, j); err != nil {
			return fmt.Errorf("persist recovered job %s: %w", j.ID, err)
		}
		m.cleanupWorkspace(ctx, j.ID, false)
		logging.WarnWithContext(m.logger, "interrupted job marked failed", "job_recovered",
			logging.String(logging.FieldJobID, j.ID),
			logging.String(logging.FieldStage, string(stage)),
			logging.String(logging.FieldErrorHint, "resubmit the prompt"),
			logging.String(logging.FieldImpact, "job will not resume"),
		)
	}
	return nil
}
