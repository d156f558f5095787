package workflow

import (
	"context"

	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool              `json:"running"`
	ActiveJobs int               `json:"active_jobs"`
	LastError  string            `json:"last_error,omitempty"`
	JobCounts  map[job.State]int `json:"job_counts"`
}

// Summary returns the latest workflow information.
func (m *Manager) Summary(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{Running: m.running, ActiveJobs: len(m.runs)}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	summary.JobCounts = make(map[job.State]int)
	jobs, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("failed to read job counts", logging.Error(err))
		return summary
	}
	for _, j := range jobs {
		summary.JobCounts[j.State]++
	}
	return summary
}

// Status returns the read-only projection of one job. It reads the store and
// never waits on a running stage.
func (m *Manager) Status(ctx context.Context, id string) (job.View, error) {
	return jobstore.View(ctx, m.store, id)
}

// FinalArtifact returns the deliverable once the job is DONE, otherwise
// jobstore.ErrNotReady or jobstore.ErrNotFound.
func (m *Manager) FinalArtifact(ctx context.Context, id string) (job.MediaHandle, error) {
	return jobstore.FinalArtifact(ctx, m.store, id)
}

// List returns views of every job in the given states (all when empty),
// oldest first.
func (m *Manager) List(ctx context.Context, states ...job.State) ([]job.View, error) {
	jobs, err := m.store.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	out := make([]job.View, len(jobs))
	for i, j := range jobs {
		out[i] = j.View()
	}
	return out, nil
}
