package maintenance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkeeper/internal/adapter/maintenance"
	"jobkeeper/internal/adapter/storage/memory"
	"jobkeeper/internal/jobs"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type registration struct {
	name     string
	schedule string
	handler  jobs.Handler
}

type fakeRegistrar struct {
	regs []registration
	err  error
}

func (f *fakeRegistrar) Register(_ context.Context, name, schedule string, h jobs.Handler) error {
	if f.err != nil {
		return f.err
	}
	f.regs = append(f.regs, registration{name, schedule, h})
	return nil
}

type brokenStore struct{ err error }

func (b brokenStore) PruneExecutions(context.Context, time.Time) (int64, error) { return 0, b.err }
func (b brokenStore) Ping(context.Context) error { return b.err }

func TestRegister(t *testing.T) {
	r := &fakeRegistrar{}
	err := maintenance.Register(context.Background(), r, maintenance.Options{
		Store:         memory.New(),
		RetentionDays: 7,
		PruneSchedule: "0 3 * * *",
		Logger:        discard,
	})
	require.NoError(t, err)
	require.Len(t, r.regs, 2)
	assert.Equal(t, maintenance.PruneJobName, r.regs[0].name)
	assert.Equal(t, "0 3 * * *", r.regs[0].schedule)
	assert.Equal(t, maintenance.HeartbeatJobName, r.regs[1].name)
	assert.Equal(t, maintenance.HeartbeatSchedule, r.regs[1].schedule)
}

func TestRegister_RetentionDisabled(t *testing.T) {
	r := &fakeRegistrar{}
	err := maintenance.Register(context.Background(), r, maintenance.Options{
		Store:  memory.New(),
		Logger: discard,
	})
	require.NoError(t, err)
	require.Len(t, r.regs, 1)
	assert.Equal(t, maintenance.HeartbeatJobName, r.regs[0].name)
}

func TestRegister_Error(t *testing.T) {
	r := &fakeRegistrar{err: errors.New("duplicate")}
	err := maintenance.Register(context.Background(), r, maintenance.Options{
		Store:         memory.New(),
		RetentionDays: 1,
		PruneSchedule: "0 3 * * *",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), maintenance.PruneJobName)
}

func TestPruneHandler(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	store := memory.New()

	seed := func(id string, startedAt time.Time, terminal bool) {
		require.NoError(t, store.CreateExecution(ctx, jobs.ExecutionRecord{
			ID: id, JobName: "report", StartedAt: startedAt, Status: jobs.StatusRunning,
		}))
		if terminal {
			require.NoError(t, store.UpdateExecution(ctx, id, jobs.ExecutionOutcome{
				Status: jobs.StatusSuccess, CompletedAt: startedAt.Add(time.Second), DurationMs: 1000,
			}))
		}
	}
	seed("old-done", now.Add(-40*24*time.Hour), true)
	seed("old-running", now.Add(-40*24*time.Hour), false)
	seed("recent", now.Add(-time.Hour), true)

	h := maintenance.PruneHandler(store, 30*24*time.Hour, func() time.Time { return now }, discard)
	require.NoError(t, h(ctx))

	recs, err := store.ListExecutions(ctx, jobs.ExecutionFilter{JobName: "report"})
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"old-running", "recent"}, ids)
}

func TestPruneHandler_Error(t *testing.T) {
	h := maintenance.PruneHandler(brokenStore{err: errors.New("disk full")}, time.Hour, nil, discard)
	err := h(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHeartbeatHandler(t *testing.T) {
	require.NoError(t, maintenance.HeartbeatHandler(memory.New(), 0, discard)(context.Background()))

	down := errors.New("connection refused")
	err := maintenance.HeartbeatHandler(brokenStore{err: down}, time.Second, discard)(context.Background())
	assert.ErrorIs(t, err, down)
}

func TestHeartbeatHandler_AppliesTimeout(t *testing.T) {
	var deadline time.Time
	store := pingRecorder(func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	start := time.Now()
	require.NoError(t, maintenance.HeartbeatHandler(store, 50*time.Millisecond, discard)(context.Background()))
	assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}

type pingRecorder func(ctx context.Context) error

func (p pingRecorder) Ping(ctx context.Context) error { return p(ctx) }
func (p pingRecorder) PruneExecutions(context.Context, time.Time) (int64, error) { return 0, nil }
