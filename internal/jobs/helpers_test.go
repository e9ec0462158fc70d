package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobkeeper/internal/adapter/storage/memory"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
	"jobkeeper/pkg/retry"
)

// manualEngine is a CronEngine whose entries fire only when a test says so.
type manualEngine struct {
	mu      sync.Mutex
	nextID  int
	entries []*manualEntry
	failAll error
}

type manualEntry struct {
	id      int
	expr    string
	fn      func()
	stopped atomic.Bool
}

func (h *manualEntry) Stop() { h.stopped.Store(true) }

func (e *manualEngine) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" || strings.HasPrefix(expr, "bad") {
		return shared.Validationf("invalid cron expression %q", expr)
	}
	return nil
}

func (e *manualEngine) Schedule(expr string, fn func()) (jobs.Handle, error) {
	if err := e.Validate(expr); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAll != nil {
		return nil, e.failAll
	}
	e.nextID++
	h := &manualEntry{id: e.nextID, expr: expr, fn: fn}
	e.entries = append(e.entries, h)
	return h, nil
}

// active returns the live entries scheduled with expr.
func (e *manualEngine) active(expr string) []*manualEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*manualEntry
	for _, h := range e.entries {
		if h.expr == expr && !h.stopped.Load() {
			out = append(out, h)
		}
	}
	return out
}

func (e *manualEngine) activeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.entries {
		if !h.stopped.Load() {
			n++
		}
	}
	return n
}

// fire runs the single live entry for expr synchronously.
func (e *manualEngine) fire(t *testing.T, expr string) {
	t.Helper()
	live := e.active(expr)
	require.Len(t, live, 1, "expected exactly one active timer for %q", expr)
	live[0].fn()
}

// faultyStore wraps the in-memory store and injects errors per operation.
type faultyStore struct {
	*memory.Store

	mu           sync.Mutex
	findErr      map[string]error
	createCfgErr error
	upsertErr    error
	deleteErr    error
	createExeErr error
	updateErrs   []error // returned in order, one per call
	createCalls  atomic.Int32
	updateCalls  atomic.Int32
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), findErr: map[string]error{}}
}

func (s *faultyStore) FindJobConfig(ctx context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	s.mu.Lock()
	err := s.findErr[name]
	s.mu.Unlock()
	if err != nil {
		return jobs.PersistedJobConfig{}, false, err
	}
	return s.Store.FindJobConfig(ctx, name)
}

func (s *faultyStore) CreateJobConfig(ctx context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	s.createCalls.Add(1)
	if s.createCfgErr != nil {
		return jobs.PersistedJobConfig{}, s.createCfgErr
	}
	return s.Store.CreateJobConfig(ctx, cfg)
}

func (s *faultyStore) UpsertJobConfig(ctx context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.UpsertJobConfig(ctx, name, patch, seed)
}

func (s *faultyStore) DeleteJobConfig(ctx context.Context, name string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.DeleteJobConfig(ctx, name)
}

func (s *faultyStore) CreateExecution(ctx context.Context, rec jobs.ExecutionRecord) error {
	if s.createExeErr != nil {
		return s.createExeErr
	}
	return s.Store.CreateExecution(ctx, rec)
}

func (s *faultyStore) UpdateExecution(ctx context.Context, id string, outcome jobs.ExecutionOutcome) error {
	s.updateCalls.Add(1)
	s.mu.Lock()
	var err error
	if len(s.updateErrs) > 0 {
		err, s.updateErrs = s.updateErrs[0], s.updateErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.UpdateExecution(ctx, id, outcome)
}

var errStoreDown = errors.New("store unavailable")

type fixture struct {
	svc    *jobs.Service
	engine *manualEngine
	store  *faultyStore
}

func newFixture(t *testing.T, mutate ...func(*jobs.Config)) *fixture {
	t.Helper()
	f := &fixture{engine: &manualEngine{}, store: newFaultyStore()}
	cfg := jobs.Config{
		Configs:    f.store,
		Executions: f.store,
		Engine:     f.engine,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := jobs.New(cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) executions(t *testing.T, job string) []jobs.ExecutionRecord {
	t.Helper()
	recs, err := f.store.ListExecutions(context.Background(), jobs.ExecutionFilter{JobName: job})
	require.NoError(t, err)
	return recs
}

func (f *fixture) persisted(t *testing.T, job string) (jobs.PersistedJobConfig, bool) {
	t.Helper()
	cfg, found, err := f.store.Store.FindJobConfig(context.Background(), job)
	require.NoError(t, err)
	return cfg, found
}

func noop(context.Context) error { return nil }

func ptr[T any](v T) *T { return &v }
