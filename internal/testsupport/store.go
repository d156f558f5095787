package testsupport

import (
	"context"
	"testing"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
)

// MustOpenStore opens the configured job store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a pending job with the given prompt and scene count.
func NewJob(t testing.TB, store jobstore.Store, prompt string, scenes int) *job.Job {
	t.Helper()

	j := job.New(job.NewID(), prompt, scenes, time.Now())
	if err := store.Create(context.Background(), j); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return j
}
