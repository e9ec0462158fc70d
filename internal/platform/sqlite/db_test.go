package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultDBOptions(t *testing.T) {
	opts := DefaultDBOptions()
	if opts.MaxOpenConns != 4 {
		t.Errorf("MaxOpenConns = %d, want 4", opts.MaxOpenConns)
	}
	if !opts.WALMode || !opts.ForeignKeys {
		t.Error("WAL and foreign keys should be enabled by default")
	}
	if opts.BusyTimeout != 5*time.Second {
		t.Errorf("BusyTimeout = %v, want 5s", opts.BusyTimeout)
	}

	mem := InMemoryDBOptions()
	if mem.MaxOpenConns != 1 || mem.WALMode {
		t.Error("in-memory options must use a single connection without WAL")
	}
	if mem.ConnMaxIdleTime != 0 || mem.ConnMaxLifetime != 0 {
		t.Error("in-memory connection must never be recycled")
	}
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("data/app.db", DefaultDBOptions())
	if !strings.HasPrefix(dsn, "data/app.db?") {
		t.Errorf("unexpected dsn %q", dsn)
	}
	if !strings.Contains(dsn, "_pragma=busy_timeout%285000%29") {
		t.Errorf("busy_timeout pragma missing from %q", dsn)
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys%281%29") {
		t.Errorf("foreign_keys pragma missing from %q", dsn)
	}

	if got := buildDSN("x.db", DBOptions{}); got != "x.db" {
		t.Errorf("buildDSN without pragmas = %q, want x.db", got)
	}
}

func TestNewDB_CreatesDirectoryAndWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "jobkeeper.db")
	ctx := context.Background()

	db, err := NewDB(ctx, path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if strings.ToLower(mode) != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestNewInMemoryDB(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	if err != nil {
		t.Fatalf("NewInMemoryDB: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
}
