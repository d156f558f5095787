package daemon_test

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/workflow"
)

type lifecycleWorkflow struct {
	startErr error
	starts   int
	stops    int
}

func (w *lifecycleWorkflow) Start(context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.starts++
	return nil
}
func (w *lifecycleWorkflow) Stop() { w.stops++ }
func (w *lifecycleWorkflow) Submit(context.Context, string, int) (string, error) {
	return "", workflow.ErrNotRunning
}
func (w *lifecycleWorkflow) Status(context.Context, string) (job.View, error) {
	return job.View{}, nil
}
func (w *lifecycleWorkflow) FinalArtifact(context.Context, string) (job.MediaHandle, error) {
	return job.MediaHandle{}, nil
}
func (w *lifecycleWorkflow) Cancel(context.Context, string) error { return nil }
func (w *lifecycleWorkflow) Delete(context.Context, string) (job.View, error) {
	return job.View{}, nil
}
func (w *lifecycleWorkflow) List(context.Context, ...job.State) ([]job.View, error) {
	return nil, nil
}
func (w *lifecycleWorkflow) Summary(context.Context) workflow.StatusSummary {
	return workflow.StatusSummary{}
}

func newDaemon(t *testing.T, cfg *config.Config, wf daemon.Workflow) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop(), wf)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	wf := &lifecycleWorkflow{}
	d := newDaemon(t, cfg, wf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if wf.starts != 1 || wf.stops != 1 {
		t.Fatalf("workflow starts=%d stops=%d", wf.starts, wf.stops)
	}

	// The lock is released, so a restart succeeds.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, &lifecycleWorkflow{})
	second := newDaemon(t, cfg, &lifecycleWorkflow{})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be refused")
	}
}

func TestDaemonStartReleasesLockWhenWorkflowFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	broken := newDaemon(t, cfg, &lifecycleWorkflow{startErr: errors.New("stages missing")})
	if err := broken.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}

	healthy := newDaemon(t, cfg, &lifecycleWorkflow{})
	if err := healthy.Start(context.Background()); err != nil {
		t.Fatalf("lock was not released: %v", err)
	}
}
