package pg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions содержит настройки пула подключений PostgreSQL.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	// PingTimeout - таймаут проверки соединения при создании пула
	PingTimeout time.Duration
	// ApplicationName попадает в pg_stat_activity, чтобы отличать соединения планировщика.
	ApplicationName string
	// StatementTimeout ограничивает каждый запрос на стороне сервера (0 - без ограничения).
	// Запросы хранилища короткие, зависший запрос лучше оборвать, чем держать строку запуска.
	StatementTimeout time.Duration
}

// DefaultPoolOptions возвращает настройки по умолчанию для планировщика:
// запись идёт короткими запросами (конфиг задачи, строка запуска), пул небольшой.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          8,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
		ApplicationName:   "jobkeeper",
		StatementTimeout:  30 * time.Second,
	}
}

// NewPool создает пул подключений к PostgreSQL с настройками по умолчанию.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPoolWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewPoolWithOptions создает пул подключений с заданными параметрами и проверяет соединение.
func NewPoolWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// poolConfig разбирает DSN и накладывает опции; параметры из DSN
// (application_name, statement_timeout) имеют приоритет.
func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok && opts.ApplicationName != "" {
		params["application_name"] = opts.ApplicationName
	}
	if _, ok := params["statement_timeout"]; !ok && opts.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}
	return cfg, nil
}
