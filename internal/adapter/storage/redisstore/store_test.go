package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/adapter/storage/storagetest"
	"jobkeeper/internal/platform/redis"
)

func TestStore(t *testing.T) {
	addr := redis.TestAddr(t)
	prefix := "jobkeeper-test:" + uuid.NewString()[:8] + ":"

	s, err := Open(context.Background(), redis.ClientOptions{Addr: addr, DB: 15}, prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			_ = s.client.Del(ctx, iter.Val()).Err()
		}
		_ = s.Close()
	})

	storagetest.Run(t, func(t *testing.T) storage.Store {
		return s
	})
}

func TestDecodeExecution(t *testing.T) {
	started := time.UnixMilli(1_700_000_000_000).UTC()
	rec, err := decodeExecution("id-1", map[string]string{
		"job_name":     "report",
		"started_at":   "1700000000000",
		"completed_at": "1700000001500",
		"duration_ms":  "1500",
		"status":       "success",
		"error":        "",
	})
	require.NoError(t, err)
	assert.Equal(t, "report", rec.JobName)
	assert.True(t, started.Equal(rec.StartedAt))
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, started.Add(1500*time.Millisecond), *rec.CompletedAt)
	require.NotNil(t, rec.DurationMs)
	assert.Equal(t, int64(1500), *rec.DurationMs)

	_, err = decodeExecution("id-2", map[string]string{"started_at": "soon"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	s := New(nil, "jk:")
	assert.Equal(t, "jk:config:report", s.configKey("report"))
	assert.Equal(t, "jk:exec:abc", s.execKey("abc"))
	assert.Equal(t, "jk:execs", s.execsKey())
	assert.Equal(t, "jk:execs:job:report", s.jobExecsKey("report"))
}
