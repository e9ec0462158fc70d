package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable - таблица версий golang-migrate.
const MigrationsTable = "schema_migrations"

// ApplyMigrationsFS применяет миграции из fsys/dir к уже открытой БД.
// Безопасна для повторного вызова: migrate.ErrNoChange не считается ошибкой.
//
// Миграции идут через то же *sql.DB, поэтому работают и для in-memory БД.
// migrate.Close() не вызывается намеренно: драйвер sqlite закрыл бы *sql.DB,
// который принадлежит вызывающему коду.
func ApplyMigrationsFS(db *sql.DB, fsys fs.FS, dir string) error {
	m, src, err := newMigrator(db, fsys, dir)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrationVersion возвращает текущую версию схемы; 0 - миграции не применялись.
func MigrationVersion(db *sql.DB, fsys fs.FS, dir string) (uint, bool, error) {
	m, src, err := newMigrator(db, fsys, dir)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = src.Close() }()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(db *sql.DB, fsys fs.FS, dir string) (*migrate.Migrate, interface{ Close() error }, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open migrations source: %w", err)
	}

	driver, err := msqlite.WithInstance(db, &msqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, src, nil
}
