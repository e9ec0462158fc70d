// Package mongo содержит подключение к MongoDB для хранилища задач.
package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// ClientOptions содержит настройки клиента MongoDB.
type ClientOptions struct {
	// MaxPoolSize - максимальное количество соединений в пуле
	MaxPoolSize uint64
	// ConnectTimeout - таймаут установки соединения
	ConnectTimeout time.Duration
	// PingTimeout - таймаут проверки соединения при создании клиента
	PingTimeout time.Duration
}

// DefaultClientOptions возвращает настройки по умолчанию.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		MaxPoolSize:    10,
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// Connect создает клиента MongoDB и проверяет соединение с primary.
// Закрытие клиента (Disconnect) остается на вызывающем коде.
func Connect(ctx context.Context, uri string, opts ClientOptions) (*mongod.Client, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetConnectTimeout(opts.ConnectTimeout)

	client, err := mongod.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := Ping(ctx, client, opts.PingTimeout); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Ping проверяет доступность primary с таймаутом.
func Ping(ctx context.Context, client *mongod.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	return nil
}

// TestURIEnv - переменная окружения с URI тестовой MongoDB.
const TestURIEnv = "JOBKEEPER_TEST_MONGO_URI"

// TestURI возвращает URI тестовой БД или пропускает тест, если он не задан.
func TestURI(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	uri := os.Getenv(TestURIEnv)
	if uri == "" {
		t.Skipf("integration test requires %s", TestURIEnv)
	}
	return uri
}
