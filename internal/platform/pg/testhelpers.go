package pg

import (
	"os"
	"testing"
)

// TestDSNEnv - переменная окружения с DSN тестовой PostgreSQL.
const TestDSNEnv = "JOBKEEPER_TEST_PG_DSN"

// TestDSN возвращает DSN тестовой БД или пропускает тест, если она не задана.
func TestDSN(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("integration test requires %s", TestDSNEnv)
	}
	return dsn
}
