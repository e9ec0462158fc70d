package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/adapter/storage/storagetest"
	"jobkeeper/internal/platform/pg"
)

func TestStore(t *testing.T) {
	dsn := pg.TestDSN(t)

	info, err := Migrate(dsn)
	require.NoError(t, err)
	require.Equal(t, uint(1), info.FinalVersion)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pg.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New(pool)
	})
}
