// Package memory is an in-process Store. Nothing survives a restart; it
// backs tests and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
)

var _ storage.Store = (*Store)(nil)

// Store keeps configs and execution records in maps.
type Store struct {
	mu         sync.RWMutex
	configs    map[string]jobs.PersistedJobConfig
	executions map[string]jobs.ExecutionRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		configs:    make(map[string]jobs.PersistedJobConfig),
		executions: make(map[string]jobs.ExecutionRecord),
	}
}

func (s *Store) FindJobConfig(_ context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok, nil
}

func (s *Store) CreateJobConfig(_ context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.JobName]; ok {
		return jobs.PersistedJobConfig{}, fmt.Errorf("job config %q: %w", cfg.JobName, shared.ErrConflict)
	}
	s.configs[cfg.JobName] = cfg
	return cfg, nil
}

func (s *Store) UpsertJobConfig(_ context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[name]
	if !ok {
		cfg = seed
		cfg.JobName = name
	}
	s.configs[name] = patch.Apply(cfg)
	return nil
}

func (s *Store) DeleteJobConfig(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.configs, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateExecution(_ context.Context, rec jobs.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[rec.ID]; ok {
		return fmt.Errorf("execution %s: %w", rec.ID, shared.ErrConflict)
	}
	s.executions[rec.ID] = rec
	return nil
}

func (s *Store) UpdateExecution(_ context.Context, id string, outcome jobs.ExecutionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, shared.ErrNotFound)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("execution %s already %s: %w", id, rec.Status, shared.ErrConflict)
	}
	completed := outcome.CompletedAt
	duration := outcome.DurationMs
	rec.Status = outcome.Status
	rec.CompletedAt = &completed
	rec.DurationMs = &duration
	rec.Error = outcome.Error
	s.executions[id] = rec
	return nil
}

func (s *Store) ListExecutions(_ context.Context, filter jobs.ExecutionFilter) ([]jobs.ExecutionRecord, error) {
	s.mu.RLock()
	out := make([]jobs.ExecutionRecord, 0)
	for _, rec := range s.executions {
		if filter.JobName != "" && rec.JobName != filter.JobName {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) PruneExecutions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.executions {
		if rec.Status.Terminal() && rec.StartedAt.Before(before) {
			delete(s.executions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
