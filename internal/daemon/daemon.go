package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/preflight"
	"reelsmith/internal/workflow"
)

// Workflow is the job lifecycle surface the daemon serves. *workflow.Manager
// satisfies it.
type Workflow interface {
	Start(ctx context.Context) error
	Stop()
	Submit(ctx context.Context, prompt string, sceneCount int) (string, error)
	Status(ctx context.Context, id string) (job.View, error)
	FinalArtifact(ctx context.Context, id string) (job.MediaHandle, error)
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) (job.View, error)
	List(ctx context.Context, states ...job.State) ([]job.View, error)
	Summary(ctx context.Context) workflow.StatusSummary
}

// Daemon coordinates the workflow manager and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	workflow Workflow
	notifier notifications.Service
	depCheck func() []deps.Status

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	Dependencies []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithDependencyCheck overrides the binary availability probe.
func WithDependencyCheck(check func() []deps.Status) Option {
	return func(d *Daemon) {
		if check != nil {
			d.depCheck = check
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, wf Workflow, opts ...Option) (*Daemon, error) {
	if cfg == nil || wf == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		workflow: wf,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.notifier = notifications.NewService(cfg)
	d.depCheck = func() []deps.Status { return preflight.CheckSystemDeps(cfg) }
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(strings.TrimSpace(cfg.Paths.APIBind), d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the workflow manager, and begins
// serving the HTTP API when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelsmith daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.cfg.Paths.APIBind),
	)
	return nil
}

// Stop stops the API, cancels running jobs, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("reelsmith daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Handler returns the HTTP API handler, independent of any listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.router
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Summary(ctx),
		LockFilePath: d.lockPath,
		Dependencies: d.depCheck(),
	}
	if d.cfg.Workflow.Store != config.StoreMemory {
		status.DatabasePath = d.cfg.DatabasePath()
	}
	return status
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{})
	if err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
