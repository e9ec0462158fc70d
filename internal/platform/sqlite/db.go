package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// DBOptions содержит настройки для SQLite базы данных.
type DBOptions struct {
	// ConnMaxLifetime - максимальное время жизни соединения (0 - без ограничения)
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime - максимальное время простоя соединения (0 - без ограничения)
	ConnMaxIdleTime time.Duration
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// PingTimeout - таймаут для проверки соединения при создании БД
	PingTimeout time.Duration
	// WALMode - использовать ли WAL режим
	WALMode bool
	// ForeignKeys - включить ли проверку внешних ключей
	ForeignKeys bool
	// BusyTimeout - сколько ждать блокировку, прежде чем вернуть SQLITE_BUSY
	BusyTimeout time.Duration
}

// DefaultDBOptions возвращает настройки по умолчанию для файловой БД планировщика.
// Писатель в SQLite один, поэтому пул небольшой.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
	}
}

// InMemoryDBOptions возвращает настройки для in-memory БД.
// Соединение ровно одно и никогда не закрывается пулом: иначе схема пропадёт.
func InMemoryDBOptions() DBOptions {
	opts := DefaultDBOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	return opts
}

// NewDB открывает файловую SQLite базу с настройками по умолчанию.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewInMemoryDB создает in-memory SQLite базу данных (тесты, STORAGE_DRIVER=sqlite с ":memory:").
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	return NewDBWithOptions(ctx, ":memory:", InMemoryDBOptions())
}

// NewDBWithOptions открывает SQLite с заданными параметрами и применяет PRAGMA.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmaSettings(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}

	return db, nil
}

// buildDSN переносит per-connection PRAGMA в DSN (синтаксис modernc: _pragma=name(value)),
// чтобы их получало каждое соединение пула, а не только первое.
func buildDSN(dbPath string, opts DBOptions) string {
	params := url.Values{}
	if opts.ForeignKeys {
		params.Add("_pragma", "foreign_keys(1)")
	}
	if opts.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if len(params) == 0 {
		return dbPath
	}
	return dbPath + "?" + params.Encode()
}

// applyPragmaSettings применяет PRAGMA, которые хранятся в самом файле БД.
func applyPragmaSettings(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := []string{"PRAGMA synchronous = NORMAL"}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
