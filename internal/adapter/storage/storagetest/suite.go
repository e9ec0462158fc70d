// Package storagetest is the behavioral test suite every storage.Store
// backend runs against.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
)

// Factory returns a ready store. It is called once per subtest and should
// register its own cleanup.
type Factory func(t *testing.T) storage.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"FindMissingConfig", testFindMissingConfig},
		{"CreateAndFindConfig", testCreateAndFindConfig},
		{"CreateDuplicateConfig", testCreateDuplicateConfig},
		{"UpsertExistingConfig", testUpsertExistingConfig},
		{"UpsertKeepsAuthor", testUpsertKeepsAuthor},
		{"UpsertMissingConfig", testUpsertMissingConfig},
		{"DeleteConfig", testDeleteConfig},
		{"ExecutionLifecycle", testExecutionLifecycle},
		{"UpdateUnknownExecution", testUpdateUnknownExecution},
		{"ListExecutionsFilters", testListExecutionsFilters},
		{"PruneExecutions", testPruneExecutions},
		{"ConcurrentExecutions", testConcurrentExecutions},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// jobName returns a name unique across runs so shared databases need no cleanup.
func jobName(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func ptr[T any](v T) *T { return &v }

func testFindMissingConfig(t *testing.T, s storage.Store) {
	_, found, err := s.FindJobConfig(context.Background(), jobName("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func testCreateAndFindConfig(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("create")
	at := now()

	created, err := s.CreateJobConfig(ctx, jobs.PersistedJobConfig{
		JobName:   name,
		Schedule:  "*/5 * * * *",
		Enabled:   true,
		UpdatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, name, created.JobName)

	got, found, err := s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, name, got.JobName)
	assert.Equal(t, "*/5 * * * *", got.Schedule)
	assert.True(t, got.Enabled)
	assert.Empty(t, got.UpdatedBy)
	assert.WithinDuration(t, at, got.UpdatedAt, time.Millisecond)
}

func testCreateDuplicateConfig(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cfg := jobs.PersistedJobConfig{JobName: jobName("dup"), Schedule: "@hourly", Enabled: true, UpdatedAt: now()}

	_, err := s.CreateJobConfig(ctx, cfg)
	require.NoError(t, err)

	cfg.Schedule = "@daily"
	_, err = s.CreateJobConfig(ctx, cfg)
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err), "got %v", err)

	got, _, err := s.FindJobConfig(ctx, cfg.JobName)
	require.NoError(t, err)
	assert.Equal(t, "@hourly", got.Schedule)
}

func testUpsertExistingConfig(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("upsert")
	_, err := s.CreateJobConfig(ctx, jobs.PersistedJobConfig{JobName: name, Schedule: "@hourly", Enabled: true, UpdatedAt: now()})
	require.NoError(t, err)

	at := now().Add(time.Minute)
	err = s.UpsertJobConfig(ctx, name, jobs.ConfigPatch{
		Enabled:   ptr(false),
		UpdatedAt: at,
		UpdatedBy: "alice",
	}, jobs.PersistedJobConfig{JobName: name, Schedule: "@weekly", Enabled: true})
	require.NoError(t, err)

	got, found, err := s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "@hourly", got.Schedule, "schedule not in patch must be kept")
	assert.False(t, got.Enabled)
	assert.Equal(t, "alice", got.UpdatedBy)
	assert.WithinDuration(t, at, got.UpdatedAt, time.Millisecond)

	err = s.UpsertJobConfig(ctx, name, jobs.ConfigPatch{Schedule: ptr("0 0 * * *"), UpdatedAt: at}, jobs.PersistedJobConfig{})
	require.NoError(t, err)

	got, _, err = s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * *", got.Schedule)
	assert.False(t, got.Enabled, "enabled not in patch must be kept")
}

func testUpsertKeepsAuthor(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("author")
	seed := jobs.PersistedJobConfig{JobName: name, Schedule: "@hourly", Enabled: true}

	require.NoError(t, s.UpsertJobConfig(ctx, name, jobs.ConfigPatch{
		Schedule:  ptr("@daily"),
		UpdatedAt: now(),
		UpdatedBy: "alice",
	}, seed))
	require.NoError(t, s.UpsertJobConfig(ctx, name, jobs.ConfigPatch{
		Enabled:   ptr(false),
		UpdatedAt: now().Add(time.Minute),
	}, seed))

	got, found, err := s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", got.UpdatedBy, "update without an author keeps the stored one")
	assert.False(t, got.Enabled)
	assert.Equal(t, "@daily", got.Schedule)
}

func testUpsertMissingConfig(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("seed")

	err := s.UpsertJobConfig(ctx, name, jobs.ConfigPatch{
		Schedule:  ptr("*/10 * * * *"),
		UpdatedAt: now(),
	}, jobs.PersistedJobConfig{JobName: name, Schedule: "@hourly", Enabled: true})
	require.NoError(t, err)

	got, found, err := s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "*/10 * * * *", got.Schedule)
	assert.True(t, got.Enabled, "enabled comes from the seed")
}

func testDeleteConfig(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("delete")
	_, err := s.CreateJobConfig(ctx, jobs.PersistedJobConfig{JobName: name, Schedule: "@hourly", Enabled: true, UpdatedAt: now()})
	require.NoError(t, err)

	require.NoError(t, s.DeleteJobConfig(ctx, name))
	_, found, err := s.FindJobConfig(ctx, name)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, s.DeleteJobConfig(ctx, jobName("never-existed")))
}

func testExecutionLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("exec")
	started := now()
	rec := jobs.ExecutionRecord{ID: uuid.NewString(), JobName: name, StartedAt: started, Status: jobs.StatusRunning}
	require.NoError(t, s.CreateExecution(ctx, rec))

	list, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: name})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, jobs.StatusRunning, list[0].Status)
	assert.Nil(t, list[0].CompletedAt)
	assert.Nil(t, list[0].DurationMs)

	completed := started.Add(1500 * time.Millisecond)
	require.NoError(t, s.UpdateExecution(ctx, rec.ID, jobs.ExecutionOutcome{
		Status:      jobs.StatusFailed,
		CompletedAt: completed,
		DurationMs:  1500,
		Error:       "boom",
	}))

	list, err = s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: name})
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, completed, *got.CompletedAt, time.Millisecond)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(1500), *got.DurationMs)
	assert.WithinDuration(t, started, got.StartedAt, time.Millisecond)

	err = s.UpdateExecution(ctx, rec.ID, jobs.ExecutionOutcome{Status: jobs.StatusSuccess, CompletedAt: completed})
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err), "terminal records are immutable, got %v", err)
}

func testUpdateUnknownExecution(t *testing.T, s storage.Store) {
	err := s.UpdateExecution(context.Background(), uuid.NewString(), jobs.ExecutionOutcome{
		Status:      jobs.StatusSuccess,
		CompletedAt: now(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}

func testListExecutionsFilters(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := jobName("list-a"), jobName("list-b")
	base := now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 4; i++ {
		rec := jobs.ExecutionRecord{
			ID:        uuid.NewString(),
			JobName:   a,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    jobs.StatusRunning,
		}
		require.NoError(t, s.CreateExecution(ctx, rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.CreateExecution(ctx, jobs.ExecutionRecord{
		ID: uuid.NewString(), JobName: b, StartedAt: base, Status: jobs.StatusRunning,
	}))
	require.NoError(t, s.UpdateExecution(ctx, ids[0], jobs.ExecutionOutcome{Status: jobs.StatusSuccess, CompletedAt: base.Add(time.Second), DurationMs: 1000}))
	require.NoError(t, s.UpdateExecution(ctx, ids[1], jobs.ExecutionOutcome{Status: jobs.StatusFailed, CompletedAt: base.Add(time.Minute + time.Second), DurationMs: 1000, Error: "x"}))

	all, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: a})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, recordIDs(all), "newest first")

	limited, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: a, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[2]}, recordIDs(limited))

	failed, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: a, Status: jobs.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, recordIDs(failed))

	running, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: a, Status: jobs.StatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	other, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: b})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func testPruneExecutions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("prune")
	cutoff := now()

	old := jobs.ExecutionRecord{ID: uuid.NewString(), JobName: name, StartedAt: cutoff.Add(-48 * time.Hour), Status: jobs.StatusRunning}
	oldRunning := jobs.ExecutionRecord{ID: uuid.NewString(), JobName: name, StartedAt: cutoff.Add(-47 * time.Hour), Status: jobs.StatusRunning}
	fresh := jobs.ExecutionRecord{ID: uuid.NewString(), JobName: name, StartedAt: cutoff.Add(time.Minute), Status: jobs.StatusRunning}
	for _, rec := range []jobs.ExecutionRecord{old, oldRunning, fresh} {
		require.NoError(t, s.CreateExecution(ctx, rec))
	}
	require.NoError(t, s.UpdateExecution(ctx, old.ID, jobs.ExecutionOutcome{Status: jobs.StatusSuccess, CompletedAt: old.StartedAt.Add(time.Second), DurationMs: 1000}))
	require.NoError(t, s.UpdateExecution(ctx, fresh.ID, jobs.ExecutionOutcome{Status: jobs.StatusSuccess, CompletedAt: fresh.StartedAt.Add(time.Second), DurationMs: 1000}))

	n, err := s.PruneExecutions(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	left, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: name})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{oldRunning.ID, fresh.ID}, recordIDs(left))
}

func testConcurrentExecutions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	name := jobName("concurrent")
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := jobs.ExecutionRecord{
				ID:        uuid.NewString(),
				JobName:   name,
				StartedAt: now().Add(time.Duration(i) * time.Millisecond),
				Status:    jobs.StatusRunning,
			}
			if err := s.CreateExecution(ctx, rec); err != nil {
				errs <- err
				return
			}
			errs <- s.UpdateExecution(ctx, rec.ID, jobs.ExecutionOutcome{Status: jobs.StatusSuccess, CompletedAt: now()})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := s.ListExecutions(ctx, jobs.ExecutionFilter{JobName: name, Status: jobs.StatusSuccess})
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func testPing(t *testing.T, s storage.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func recordIDs(recs []jobs.ExecutionRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
