package jobstore

import (
	"context"
	"errors"
	"fmt"

	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/services"
)

var (
	// ErrNotFound means no job exists with the requested id.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrNotReady means the job exists but has no final artifact yet.
	ErrNotReady = errors.New("final artifact not ready")
	// ErrExists is returned when creating a job whose id is taken.
	ErrExists = errors.New("job already exists")
)

// Store is keyed storage for job records. Implementations must be safe for
// concurrent use and must never hand out memory the caller can use to mutate
// stored state: Get and List return copies, Create and Update store copies.
type Store interface {
	Create(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
	Update(ctx context.Context, j *job.Job) error
	List(ctx context.Context, states ...job.State) ([]*job.Job, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Reader is the read side consumed by status and download callers.
type Reader interface {
	Get(ctx context.Context, id string) (*job.Job, error)
}

// Open returns the backend selected by workflow.store.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("jobstore: config required")
	}
	switch cfg.Workflow.Store {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(cfg.DatabasePath())
	default:
		return nil, fmt.Errorf("jobstore: unknown backend %q", cfg.Workflow.Store)
	}
}

// View loads the status projection for id.
func View(ctx context.Context, r Reader, id string) (job.View, error) {
	j, err := r.Get(ctx, id)
	if err != nil {
		return job.View{}, err
	}
	return j.View(), nil
}

// FinalArtifact returns the deliverable for id once the job is DONE.
func FinalArtifact(ctx context.Context, r Reader, id string) (job.MediaHandle, error) {
	j, err := r.Get(ctx, id)
	if err != nil {
		return job.MediaHandle{}, err
	}
	if j.State != job.StateDone || j.FinalArtifact.IsZero() {
		if j.State == job.StateFailed {
			return job.MediaHandle{}, fmt.Errorf("%w: job %s failed", ErrNotReady, id)
		}
		return job.MediaHandle{}, fmt.Errorf("%w: job %s is %s", ErrNotReady, id, j.State)
	}
	return j.FinalArtifact, nil
}
