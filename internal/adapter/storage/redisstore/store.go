// Package redisstore keeps job configs and execution history in Redis
// hashes, with sorted sets indexing executions by start time.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/platform/redis"
	"jobkeeper/internal/shared"
)

const listBatch = 100

var _ storage.Store = (*Store)(nil)

var createConfigScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'schedule', ARGV[1], 'enabled', ARGV[2], 'updated_at', ARGV[3], 'updated_by', ARGV[4])
return 1
`)

var createExecutionScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'job_name', ARGV[1], 'started_at', ARGV[2], 'status', ARGV[3], 'error', '')
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
return 1
`)

// Returns 1 on success, 0 for an unknown id, or the current status when the
// record is already terminal.
var finishExecutionScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 0
end
if status ~= 'running' then
  return status
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[2], 'duration_ms', ARGV[3], 'error', ARGV[4])
return 1
`)

// Store implements storage.Store over a Redis client.
type Store struct {
	client     goredis.UniversalClient
	prefix     string
	ownsClient bool
}

// New wraps client; every key is namespaced by prefix. The caller owns client.
func New(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Open connects a client that the store closes on Close.
func Open(ctx context.Context, opts redis.ClientOptions, prefix string) (*Store, error) {
	client, err := redis.NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	s := New(client, prefix)
	s.ownsClient = true
	return s, nil
}

func (s *Store) FindJobConfig(ctx context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.configKey(name)).Result()
	if err != nil {
		return jobs.PersistedJobConfig{}, false, fmt.Errorf("redisstore: find job config: %w", err)
	}
	if len(fields) == 0 {
		return jobs.PersistedJobConfig{}, false, nil
	}
	updatedAt, err := parseMillis(fields["updated_at"])
	if err != nil {
		return jobs.PersistedJobConfig{}, false, fmt.Errorf("redisstore: job config %q: %w", name, err)
	}
	return jobs.PersistedJobConfig{
		JobName:   name,
		Schedule:  fields["schedule"],
		Enabled:   fields["enabled"] == "1",
		UpdatedAt: updatedAt,
		UpdatedBy: fields["updated_by"],
	}, true, nil
}

func (s *Store) CreateJobConfig(ctx context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	created, err := createConfigScript.Run(ctx, s.client, []string{s.configKey(cfg.JobName)},
		cfg.Schedule, boolField(cfg.Enabled), millis(cfg.UpdatedAt), cfg.UpdatedBy).Int()
	if err != nil {
		return jobs.PersistedJobConfig{}, fmt.Errorf("redisstore: create job config: %w", err)
	}
	if created == 0 {
		return jobs.PersistedJobConfig{}, fmt.Errorf("job config %q: %w", cfg.JobName, shared.ErrConflict)
	}
	return cfg, nil
}

// UpsertJobConfig seeds missing fields with HSETNX and overwrites the patched
// ones in the same MULTI block.
func (s *Store) UpsertJobConfig(ctx context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	key := s.configKey(name)
	set := []any{"updated_at", millis(patch.UpdatedAt)}
	if patch.UpdatedBy != "" {
		set = append(set, "updated_by", patch.UpdatedBy)
	}
	if patch.Schedule != nil {
		set = append(set, "schedule", *patch.Schedule)
	}
	if patch.Enabled != nil {
		set = append(set, "enabled", boolField(*patch.Enabled))
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "schedule", seed.Schedule)
	pipe.HSetNX(ctx, key, "enabled", boolField(seed.Enabled))
	pipe.HSet(ctx, key, set...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: upsert job config: %w", err)
	}
	return nil
}

func (s *Store) DeleteJobConfig(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.configKey(name)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete job config: %w", err)
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, rec jobs.ExecutionRecord) error {
	keys := []string{s.execKey(rec.ID), s.execsKey(), s.jobExecsKey(rec.JobName)}
	created, err := createExecutionScript.Run(ctx, s.client, keys,
		rec.JobName, millis(rec.StartedAt), string(rec.Status), rec.ID).Int()
	if err != nil {
		return fmt.Errorf("redisstore: create execution: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("execution %s: %w", rec.ID, shared.ErrConflict)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, outcome jobs.ExecutionOutcome) error {
	if !outcome.Status.Terminal() {
		return shared.Validationf("execution %s: status %q is not terminal", id, outcome.Status)
	}

	res, err := finishExecutionScript.Run(ctx, s.client, []string{s.execKey(id)},
		string(outcome.Status), millis(outcome.CompletedAt), outcome.DurationMs, outcome.Error).Result()
	if err != nil {
		return fmt.Errorf("redisstore: update execution: %w", err)
	}
	switch v := res.(type) {
	case int64:
		if v == 1 {
			return nil
		}
		return fmt.Errorf("execution %s: %w", id, shared.ErrNotFound)
	case string:
		return fmt.Errorf("execution %s already %s: %w", id, v, shared.ErrConflict)
	default:
		return fmt.Errorf("redisstore: update execution: unexpected reply %T", res)
	}
}

// ListExecutions walks the start time index newest first, in batches, until
// the limit is reached.
func (s *Store) ListExecutions(ctx context.Context, filter jobs.ExecutionFilter) ([]jobs.ExecutionRecord, error) {
	index := s.execsKey()
	if filter.JobName != "" {
		index = s.jobExecsKey(filter.JobName)
	}

	out := make([]jobs.ExecutionRecord, 0)
	for start := int64(0); ; start += listBatch {
		ids, err := s.client.ZRevRange(ctx, index, start, start+listBatch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: list executions: %w", err)
		}
		if len(ids) == 0 {
			return out, nil
		}

		recs, err := s.loadExecutions(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			out = append(out, rec)
			if filter.Limit > 0 && len(out) == filter.Limit {
				return out, nil
			}
		}
		if len(ids) < listBatch {
			return out, nil
		}
	}
}

func (s *Store) loadExecutions(ctx context.Context, ids []string) ([]jobs.ExecutionRecord, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.execKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redisstore: load executions: %w", err)
	}

	out := make([]jobs.ExecutionRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeExecution(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.execsKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + millis(before),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: prune executions: %w", err)
	}

	var pruned int64
	for _, id := range ids {
		vals, err := s.client.HMGet(ctx, s.execKey(id), "status", "job_name").Result()
		if err != nil {
			return pruned, fmt.Errorf("redisstore: prune executions: %w", err)
		}
		status, _ := vals[0].(string)
		jobName, _ := vals[1].(string)
		if status == string(jobs.StatusRunning) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.execKey(id))
		pipe.ZRem(ctx, s.execsKey(), id)
		if jobName != "" {
			pipe.ZRem(ctx, s.jobExecsKey(jobName), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return pruned, fmt.Errorf("redisstore: prune executions: %w", err)
		}
		if status != "" {
			pruned++
		}
	}
	return pruned, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return redis.Ping(ctx, s.client, 5*time.Second)
}

// Close closes the client only when the store opened it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

func decodeExecution(id string, f map[string]string) (jobs.ExecutionRecord, error) {
	startedAt, err := parseMillis(f["started_at"])
	if err != nil {
		return jobs.ExecutionRecord{}, fmt.Errorf("redisstore: execution %s: %w", id, err)
	}
	rec := jobs.ExecutionRecord{
		ID:        id,
		JobName:   f["job_name"],
		StartedAt: startedAt,
		Status:    jobs.Status(f["status"]),
		Error:     f["error"],
	}
	if v, ok := f["completed_at"]; ok {
		t, err := parseMillis(v)
		if err != nil {
			return jobs.ExecutionRecord{}, fmt.Errorf("redisstore: execution %s: %w", id, err)
		}
		rec.CompletedAt = &t
	}
	if v, ok := f["duration_ms"]; ok {
		d, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return jobs.ExecutionRecord{}, fmt.Errorf("redisstore: execution %s duration: %w", id, err)
		}
		rec.DurationMs = &d
	}
	return rec, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
