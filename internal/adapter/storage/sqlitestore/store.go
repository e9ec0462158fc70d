// Package sqlitestore keeps job configs and execution history in SQLite.
// Timestamps are stored as unix milliseconds.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/platform/sqlite"
	"jobkeeper/internal/shared"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store over a *sql.DB.
type Store struct {
	db     *sql.DB
	tx     *sqlite.TxRunner
	ownsDB bool
}

// New wraps an already migrated db. The caller keeps ownership of db.
func New(db *sql.DB) *Store {
	return &Store{db: db, tx: sqlite.NewTxRunner(db)}
}

// Open opens the database at path, applies migrations and returns a store
// that closes the database on Close.
func Open(ctx context.Context, path string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	if path == ":memory:" {
		db, err = sqlite.NewInMemoryDB(ctx)
	} else {
		db, err = sqlite.NewDB(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := New(db)
	s.ownsDB = true
	return s, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	return sqlite.ApplyMigrationsFS(db, migrationsFS, "migrations")
}

func (s *Store) FindJobConfig(ctx context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	const q = `SELECT job_name, schedule, enabled, updated_at, updated_by FROM job_configs WHERE job_name = ?`

	var (
		cfg       jobs.PersistedJobConfig
		updatedAt int64
		updatedBy sql.NullString
	)
	err := s.tx.GetQuerier(ctx).QueryRowContext(ctx, q, name).
		Scan(&cfg.JobName, &cfg.Schedule, &cfg.Enabled, &updatedAt, &updatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.PersistedJobConfig{}, false, nil
	}
	if err != nil {
		return jobs.PersistedJobConfig{}, false, fmt.Errorf("sqlitestore: find job config: %w", err)
	}
	cfg.UpdatedAt = fromMillis(updatedAt)
	cfg.UpdatedBy = updatedBy.String
	return cfg, true, nil
}

func (s *Store) CreateJobConfig(ctx context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	const q = `INSERT INTO job_configs (job_name, schedule, enabled, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_name) DO NOTHING`

	res, err := s.tx.GetQuerier(ctx).ExecContext(ctx, q,
		cfg.JobName, cfg.Schedule, cfg.Enabled, toMillis(cfg.UpdatedAt), nullString(cfg.UpdatedBy))
	if err != nil {
		return jobs.PersistedJobConfig{}, fmt.Errorf("sqlitestore: create job config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return jobs.PersistedJobConfig{}, fmt.Errorf("sqlitestore: create job config: %w", err)
	}
	if n == 0 {
		return jobs.PersistedJobConfig{}, fmt.Errorf("job config %q: %w", cfg.JobName, shared.ErrConflict)
	}
	return cfg, nil
}

// UpsertJobConfig only overwrites the columns present in patch.
func (s *Store) UpsertJobConfig(ctx context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	const q = `INSERT INTO job_configs (job_name, schedule, enabled, updated_at, updated_by)
		VALUES (?1, COALESCE(?2, ?3), COALESCE(?4, ?5), ?6, ?7)
		ON CONFLICT (job_name) DO UPDATE SET
			schedule   = COALESCE(?2, schedule),
			enabled    = COALESCE(?4, enabled),
			updated_at = ?6,
			updated_by = COALESCE(?7, updated_by)`

	var schedule sql.NullString
	if patch.Schedule != nil {
		schedule = sql.NullString{String: *patch.Schedule, Valid: true}
	}
	var enabled sql.NullBool
	if patch.Enabled != nil {
		enabled = sql.NullBool{Bool: *patch.Enabled, Valid: true}
	}

	_, err := s.tx.GetQuerier(ctx).ExecContext(ctx, q,
		name, schedule, seed.Schedule, enabled, seed.Enabled,
		toMillis(patch.UpdatedAt), nullString(patch.UpdatedBy))
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert job config: %w", err)
	}
	return nil
}

func (s *Store) DeleteJobConfig(ctx context.Context, name string) error {
	if _, err := s.tx.GetQuerier(ctx).ExecContext(ctx, `DELETE FROM job_configs WHERE job_name = ?`, name); err != nil {
		return fmt.Errorf("sqlitestore: delete job config: %w", err)
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, rec jobs.ExecutionRecord) error {
	const q = `INSERT INTO job_executions (id, job_name, started_at, status, error) VALUES (?, ?, ?, ?, '')`

	if _, err := s.tx.GetQuerier(ctx).ExecContext(ctx, q, rec.ID, rec.JobName, toMillis(rec.StartedAt), string(rec.Status)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("execution %s: %w", rec.ID, shared.ErrConflict)
		}
		return fmt.Errorf("sqlitestore: create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, outcome jobs.ExecutionOutcome) error {
	if !outcome.Status.Terminal() {
		return shared.Validationf("execution %s: status %q is not terminal", id, outcome.Status)
	}

	const update = `UPDATE job_executions
		SET status = ?, completed_at = ?, duration_ms = ?, error = ?
		WHERE id = ? AND status = 'running'`

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.GetQuerier(ctx)
		res, err := q.ExecContext(ctx, update,
			string(outcome.Status), toMillis(outcome.CompletedAt), outcome.DurationMs, outcome.Error, id)
		if err != nil {
			return fmt.Errorf("sqlitestore: update execution: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlitestore: update execution: %w", err)
		}
		if n > 0 {
			return nil
		}

		var status string
		err = q.QueryRowContext(ctx, `SELECT status FROM job_executions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("execution %s: %w", id, shared.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("sqlitestore: update execution: %w", err)
		}
		return fmt.Errorf("execution %s already %s: %w", id, status, shared.ErrConflict)
	})
}

func (s *Store) ListExecutions(ctx context.Context, filter jobs.ExecutionFilter) ([]jobs.ExecutionRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobName != "" {
		where = append(where, "job_name = ?")
		args = append(args, filter.JobName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := `SELECT id, job_name, started_at, completed_at, duration_ms, status, error FROM job_executions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.tx.GetQuerier(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list executions: %w", err)
	}
	defer rows.Close()

	out := make([]jobs.ExecutionRecord, 0)
	for rows.Next() {
		var (
			rec         jobs.ExecutionRecord
			startedAt   int64
			completedAt sql.NullInt64
			durationMs  sql.NullInt64
			status      string
		)
		if err := rows.Scan(&rec.ID, &rec.JobName, &startedAt, &completedAt, &durationMs, &status, &rec.Error); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan execution: %w", err)
		}
		rec.StartedAt = fromMillis(startedAt)
		rec.Status = jobs.Status(status)
		if completedAt.Valid {
			t := fromMillis(completedAt.Int64)
			rec.CompletedAt = &t
		}
		if durationMs.Valid {
			d := durationMs.Int64
			rec.DurationMs = &d
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list executions: %w", err)
	}
	return out, nil
}

func (s *Store) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM job_executions WHERE status <> 'running' AND started_at < ?`

	res, err := s.tx.GetQuerier(ctx).ExecContext(ctx, q, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune executions: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database only when the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
