package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelsmith/internal/assembler"
	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
)

var (
	// errOwnerCanceled is the cancel cause recorded when a job owner asks for
	// cancellation.
	errOwnerCanceled = errors.New("canceled by owner")
	// errShutdown is the cancel cause recorded when the daemon stops.
	errShutdown = errors.New("daemon stopped")
)

// Manager coordinates generation jobs using the registered stage
// collaborators.
type Manager struct {
	cfg      *config.Config
	store    jobstore.Store
	stages   Stages
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
	runs    map[string]*run
	lastErr error
}

// run is the in-memory state of one job while its goroutine is alive. The
// job copy is owned by the runner; mu is the per-job write section.
type run struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu       sync.Mutex
	job      *job.Job
	script   job.Script
	segments []assembler.Segment
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager. Nothing runs until Start.
func NewManager(cfg *config.Config, store jobstore.Store, stages Stages, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		stages:   stages,
		logger:   logging.NewComponentLogger(logger, "workflow-manager"),
		notifier: notifications.NewService(cfg),
		now:      time.Now,
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
