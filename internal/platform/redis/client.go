// Package redis содержит подключение к Redis для хранилища задач.
package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ClientOptions содержит настройки клиента Redis.
type ClientOptions struct {
	Addr     string
	Password string
	DB       int
	// PoolSize - размер пула соединений (0 - значение go-redis по умолчанию)
	PoolSize int
	// DialTimeout - таймаут установки соединения
	DialTimeout time.Duration
	// PingTimeout - таймаут проверки соединения при создании клиента
	PingTimeout time.Duration
}

// NewClient создает клиента Redis и проверяет соединение.
func NewClient(ctx context.Context, opts ClientOptions) (*goredis.Client, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.DialTimeout,
	})

	if err := Ping(ctx, client, opts.PingTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping проверяет доступность Redis с таймаутом.
func Ping(ctx context.Context, client goredis.Cmdable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// TestAddrEnv - переменная окружения с адресом тестового Redis.
const TestAddrEnv = "JOBKEEPER_TEST_REDIS_ADDR"

// TestAddr возвращает адрес тестового Redis или пропускает тест, если он не задан.
func TestAddr(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	addr := os.Getenv(TestAddrEnv)
	if addr == "" {
		t.Skipf("integration test requires %s", TestAddrEnv)
	}
	return addr
}
