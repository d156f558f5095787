package jobstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"reelsmith/internal/job"
)

// MemoryStore keeps jobs in process memory. Records vanish on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*job.Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *job.Job) error {
	if j == nil || j.ID == "" {
		return errors.New("jobstore: job with id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return ErrExists
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, j *job.Job) error {
	if j == nil {
		return errors.New("jobstore: job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context, states ...job.State) ([]*job.Job, error) {
	filter := stateFilter(states)
	s.mu.RLock()
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter != nil {
			if _, ok := filter[j.State]; !ok {
				continue
			}
		}
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func stateFilter(states []job.State) map[job.State]struct{} {
	if len(states) == 0 {
		return nil
	}
	filter := make(map[job.State]struct{}, len(states))
	for _, state := range states {
		filter[state] = struct{}{}
	}
	return filter
}
