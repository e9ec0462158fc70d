package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
)

// TestDB - тестовая SQLite база с хелперами.
type TestDB struct {
	DB       *sql.DB
	TxRunner *TxRunner
}

// NewTestDBInMemory создает in-memory SQLite БД для тестов.
// БД автоматически закрывается после завершения теста.
func NewTestDBInMemory(t testing.TB) *TestDB {
	t.Helper()

	db, err := NewInMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("Failed to create in-memory test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db, TxRunner: NewTxRunner(db)}
}

// ApplyTestMigrations применяет миграции из fsys/dir и падает при ошибке.
func (tdb *TestDB) ApplyTestMigrations(t testing.TB, fsys fs.FS, dir string) {
	t.Helper()
	if err := ApplyMigrationsFS(tdb.DB, fsys, dir); err != nil {
		t.Fatalf("Failed to apply test migrations: %v", err)
	}
}

// Exec выполняет SQL команду и проверяет отсутствие ошибок.
func (tdb *TestDB) Exec(t testing.TB, query string, args ...any) sql.Result {
	t.Helper()
	result, err := tdb.DB.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
	return result
}

// CountRows возвращает количество строк в таблице.
func (tdb *TestDB) CountRows(t testing.TB, tableName string) int {
	t.Helper()
	var count int
	if err := tdb.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+tableName).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", tableName, err)
	}
	return count
}

// TableExists проверяет существование таблицы.
func (tdb *TestDB) TableExists(t testing.TB, tableName string) bool {
	t.Helper()
	var count int
	err := tdb.DB.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	return count > 0
}
