package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxRunner_CommitAndRollback(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	tdb.Exec(t, "CREATE TABLE runs (id TEXT PRIMARY KEY)")
	ctx := context.Background()

	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		_, err := tdb.TxRunner.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO runs VALUES ('a')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tdb.CountRows(t, "runs"))

	boom := errors.New("boom")
	err = tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := tdb.TxRunner.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO runs VALUES ('b')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tdb.CountRows(t, "runs"))
}

func TestTxRunner_NestedReusesOuterTx(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	tdb.Exec(t, "CREATE TABLE runs (id TEXT PRIMARY KEY)")
	ctx := context.Background()

	// With a single in-memory connection a second BEGIN would deadlock.
	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		return tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
			_, err := tdb.TxRunner.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO runs VALUES ('a')")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tdb.CountRows(t, "runs"))
}

func TestTxRunner_GetQuerierWithoutTx(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	assert.Same(t, tdb.DB, tdb.TxRunner.GetQuerier(context.Background()))
}

func TestIsBusyError(t *testing.T) {
	assert.True(t, IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusyError(errors.New("database table is locked")))
	assert.False(t, IsBusyError(errors.New("UNIQUE constraint failed")))
	assert.False(t, IsBusyError(nil))
}
