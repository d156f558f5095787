package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// MaxPromptLength bounds the prompt accepted by Submit, in runes.
const MaxPromptLength = 2000

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("workflow not running")

// ErrTerminal is returned by Cancel for a job that already finished.
var ErrTerminal = fmt.Errorf("%w: job already finished", services.ErrValidation)

// ErrActive is returned by Delete for a job that has not finished.
var ErrActive = fmt.Errorf("%w: job still in progress", services.ErrValidation)

// Start recovers jobs interrupted by a previous process and begins accepting
// submissions.
func (m *Manager) Start(ctx context.Context) error {
	if missing := m.stages.missing(); len(missing) > 0 {
		return fmt.Errorf("workflow stages not configured: %s", strings.Join(missing, ", "))
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.mu.Unlock()

	if err := m.Recover(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	m.baseCtx, m.cancel = context.WithCancelCause(context.WithoutCancel(ctx))
	m.running = true
	return nil
}

// Stop cancels every running job and waits for their runners to finish.
// Interrupted jobs end FAILED with kind canceled.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel(errShutdown)
	m.wg.Wait()
}

// Submit validates the request, stores a PENDING job, and starts driving it
// in the background. It returns as soon as the job is stored.
func (m *Manager) Submit(ctx context.Context, prompt string, sceneCount int) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if err := m.validateSubmission(prompt, sceneCount); err != nil {
		return "", err
	}

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	// m.mu is never held across store I/O.
	j := job.New(job.NewID(), prompt, sceneCount, m.now())
	if err := m.store.Create(ctx, j); err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.abandon(ctx, j)
		return "", ErrNotRunning
	}
	runCtx, cancel := context.WithCancelCause(m.baseCtx)
	r := &run{id: j.ID, cancel: cancel, done: make(chan struct{}), job: j}
	m.runs[j.ID] = r
	m.wg.Add(1)
	m.mu.Unlock()
	go m.drive(runCtx, r)

	m.logger.Info("job accepted",
		logging.String(logging.FieldJobID, j.ID),
		logging.Int("scene_count", sceneCount),
		logging.String(logging.FieldEventType, "job_accepted"),
	)
	return j.ID, nil
}

// abandon fails a job that was stored while Stop raced the submission.
func (m *Manager) abandon(ctx context.Context, j *job.Job) {
	cause := job.FailureCause{
		Stage:  job.StatePending,
		Kind:   services.KindCanceled,
		Detail: "daemon stopped before the job started",
	}
	if err := j.Fail(cause, m.now()); err != nil {
		return
	}
	if err := m.store.Update(context.WithoutCancel(ctx), j); err != nil {
		m.logger.Warn("failed to record abandoned job",
			logging.String(logging.FieldJobID, j.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_abandon_failed"),
			logging.String(logging.FieldErrorHint, "the job is failed on next start"),
		)
	}
}

func (m *Manager) validateSubmission(prompt string, sceneCount int) error {
	if prompt == "" {
		return services.Wrap(services.ErrValidation, "", "submit", "prompt is required", nil)
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return services.Wrap(services.ErrValidation, "", "submit",
			fmt.Sprintf("prompt is %d characters, limit is %d", n, MaxPromptLength), nil)
	}
	lo, hi := m.cfg.Pipeline.MinScenes, m.cfg.Pipeline.MaxScenes
	if lo < 1 {
		lo = 1
	}
	if sceneCount < lo || sceneCount > hi {
		return services.Wrap(services.ErrValidation, "", "submit",
			fmt.Sprintf("scene count %d outside %d..%d", sceneCount, lo, hi), nil)
	}
	return nil
}

// Cancel asks a running job to stop. New scene dispatches stop at once; the
// job reaches FAILED after already-dispatched work settles.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		r.cancel(errOwnerCanceled)
		m.logger.Info("job cancellation requested",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_cancel_requested"),
		)
		return nil
	}
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, j.State)
	}
	// Stored as running but no runner owns it; Recover handles these on start.
	return fmt.Errorf("%w: job %s has no active runner", jobstore.ErrNotReady, id)
}

// Delete removes a finished job: its record, its workspace, and the files it
// published to the output directory. Jobs still in the pipeline are refused
// with ErrActive; cancel them first.
func (m *Manager) Delete(ctx context.Context, id string) (job.View, error) {
	m.mu.Lock()
	_, active := m.runs[id]
	m.mu.Unlock()
	if active {
		return job.View{}, fmt.Errorf("%w: %s", ErrActive, id)
	}
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return job.View{}, err
	}
	if !j.State.Terminal() {
		return job.View{}, fmt.Errorf("%w: %s is %s", ErrActive, id, j.State)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return job.View{}, fmt.Errorf("delete job %s: %w", id, err)
	}

	m.cleanupWorkspace(ctx, id, true)
	for _, published := range []job.MediaHandle{j.FinalArtifact, j.CaptionTrack} {
		m.removePublished(ctx, id, published)
	}
	m.logger.Info("job deleted",
		logging.String(logging.FieldJobID, id),
		logging.String("state", string(j.State)),
		logging.String(logging.FieldEventType, "job_deleted"),
	)
	return j.View(), nil
}

// removePublished deletes a local deliverable, but only inside output_dir.
func (m *Manager) removePublished(ctx context.Context, id string, handle job.MediaHandle) {
	if handle.IsZero() || handle.Remote() {
		return
	}
	outputDir := strings.TrimSpace(m.cfg.Paths.OutputDir)
	if outputDir == "" {
		return
	}
	rel, err := filepath.Rel(outputDir, handle.Location)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return
	}
	if err := os.Remove(handle.Location); err != nil && !os.IsNotExist(err) {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "published file not removed", "job_delete_file_failed",
			logging.String(logging.FieldJobID, id),
			logging.String("path", handle.Location),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check output_dir permissions"),
			logging.String(logging.FieldImpact, "file stays in output_dir"),
		)
	}
}

// Wait blocks until the runner for id exits or ctx ends. It returns
// immediately when no runner exists.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drive walks one job along the success path until it is DONE or FAILED.
func (m *Manager) drive(ctx context.Context, r *run) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.runs, r.id)
		m.mu.Unlock()
		r.cancel(nil)
		close(r.done)
	}()

	ctx = services.WithJobID(ctx, r.id)
	for {
		current := r.current()
		next, ok := current.Next()
		if !ok {
			return
		}
		if next == job.StateDone {
			m.complete(ctx, r)
			return
		}
		if err := ctx.Err(); err != nil {
			m.fail(ctx, r, current, err)
			return
		}
		if err := m.transition(ctx, r, next); err != nil {
			m.fail(ctx, r, current, err)
			return
		}
		stageCtx := services.WithStage(ctx, string(next))
		if err := m.runStage(stageCtx, r, next); err != nil {
			m.fail(ctx, r, next, err)
			return
		}
	}
}

func (r *run) current() job.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.State
}

// transition moves the job into stage and persists it.
func (m *Manager) transition(ctx context.Context, r *run, stage job.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.job.Advance(stage, m.now()); err != nil {
		return err
	}
	return m.persistLocked(ctx, r)
}

// persistLocked writes the runner's copy to the store. Callers hold r.mu.
// Writes survive cancellation of the job so the final state always lands.
func (m *Manager) persistLocked(ctx context.Context, r *run) error {
	r.job.UpdatedAt = m.now().UTC()
	if err := m.store.Update(context.WithoutCancel(ctx), r.job); err != nil {
		return fmt.Errorf("persist job %s: %w", r.id, err)
	}
	return nil
}

// update applies fn to the runner's job copy under the per-job lock and
// persists the result.
func (m *Manager) update(ctx context.Context, r *run, fn func(j *job.Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.job); err != nil {
		return err
	}
	return m.persistLocked(ctx, r)
}
