package pg

import (
	"context"
	"testing"
	"time"
)

func TestHealthCheckPool_NilPool(t *testing.T) {
	t.Parallel()
	if err := HealthCheckPool(context.Background(), nil); err == nil {
		t.Error("expected error for nil pool")
	}
}

func TestWaitForDB_GivesUp(t *testing.T) {
	t.Parallel()

	opts := HealthCheckOptions{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		PingTimeout:     200 * time.Millisecond,
	}
	start := time.Now()
	err := WaitForDB(context.Background(), "postgres://u:p@127.0.0.1:1/db?connect_timeout=1", opts)
	if err == nil {
		t.Fatal("expected error for unreachable database")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("WaitForDB took too long: %v", time.Since(start))
	}
}

func TestWaitForDB_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitForDB(ctx, "postgres://u:p@127.0.0.1:1/db", DefaultHealthCheckOptions()); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestPgxTx_NoTransaction(t *testing.T) {
	t.Parallel()
	if _, ok := PgxTx(context.Background()); ok {
		t.Error("expected no transaction in empty context")
	}
}
