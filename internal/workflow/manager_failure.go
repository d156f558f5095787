package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/staging"
)

// fail classifies err, records it as the job's FailureCause, and cleans the
// workspace. Cancellation by the owner or by shutdown is reported as kind
// canceled regardless of which collaborator noticed it first.
func (m *Manager) fail(ctx context.Context, r *run, stage job.State, stageErr error) {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errOwnerCanceled):
		stageErr = services.Wrap(services.ErrCanceled, string(stage), "cancel", "canceled by owner", nil)
	case errors.Is(cause, errShutdown):
		stageErr = services.Wrap(services.ErrCanceled, string(stage), "cancel", "daemon stopped before the job finished", nil)
	}
	m.setLastError(stageErr)

	failure := job.CauseFromError(stage, stageErr)
	logger := logging.WithContext(services.WithStage(ctx, string(stage)), m.logger)

	r.mu.Lock()
	err := r.job.Fail(failure, m.now())
	if err == nil {
		err = m.persistLocked(ctx, r)
	}
	snapshot := r.job.Clone()
	r.mu.Unlock()
	if err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}

	attrs := logging.ErrorAttrs(stageErr)
	attrs = append(attrs, logging.Alert("stage_failure"))
	logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)

	m.cleanupWorkspace(ctx, r.id, failure.Kind == services.KindCanceled)
	if !errors.Is(cause, errShutdown) {
		m.notifyFailed(ctx, snapshot)
	}
}

// complete marks the job DONE once the artifact is published and removes the
// workspace.
func (m *Manager) complete(ctx context.Context, r *run) {
	logger := logging.WithContext(ctx, m.logger)
	r.mu.Lock()
	err := r.job.Advance(job.StateDone, m.now())
	if err == nil {
		err = m.persistLocked(ctx, r)
	}
	snapshot := r.job.Clone()
	r.mu.Unlock()
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to persist job completion", logging.Error(err))
		return
	}

	logger.Info("job completed",
		logging.String("artifact", snapshot.FinalArtifact.Location),
		logging.Duration("job_duration", snapshot.UpdatedAt.Sub(snapshot.CreatedAt)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	m.cleanupWorkspace(ctx, r.id, true)
	m.notifyCompleted(ctx, snapshot)
}

// cleanupWorkspace removes the job's scratch directory, or prunes only the
// intermediates so the assembled clip stays available for inspection until
// the retention sweep.
func (m *Manager) cleanupWorkspace(ctx context.Context, id string, remove bool) {
	if !staging.IsWorkspaceName(id) || strings.TrimSpace(m.cfg.Paths.StagingDir) == "" {
		return
	}
	ws := staging.Workspace{Dir: filepath.Join(m.cfg.Paths.StagingDir, id)}
	var err error
	if remove {
		err = ws.Remove()
	} else {
		err = ws.PruneIntermediates()
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "workspace cleanup failed", "workspace_cleanup_failed",
			logging.String("dir", ws.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			logging.String(logging.FieldImpact, "stale files remain until the retention sweep"),
		)
	}
}
