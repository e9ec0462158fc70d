package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobkeeper/pkg/retry"
)

// HealthCheckOptions содержит опции ожидания доступности БД при старте.
type HealthCheckOptions struct {
	// MaxRetries - максимальное количество попыток
	MaxRetries int
	// InitialInterval - начальная задержка между попытками (удваивается)
	InitialInterval time.Duration
	// MaxInterval - максимальная задержка между попытками
	MaxInterval time.Duration
	// PingTimeout - таймаут для каждой попытки ping
	PingTimeout time.Duration
}

// DefaultHealthCheckOptions возвращает опции по умолчанию.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB ожидает доступности БД (например, контейнер postgres ещё стартует).
// Каждая неудачная попытка повторяется с экспоненциальной задержкой.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	cfg := retry.Config{
		MaxAttempts:  opts.MaxRetries,
		InitialDelay: opts.InitialInterval,
		MaxDelay:     opts.MaxInterval,
		Multiplier:   2,
	}
	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	}, func(error) bool { return true })
	if err != nil {
		return fmt.Errorf("database not available: %w", err)
	}
	return nil
}

// HealthCheckPool проверяет существующий пул: ping и SELECT 1.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool ping failed: %w", err)
	}

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

// pingDatabase выполняет пинг БД через временный пул.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
