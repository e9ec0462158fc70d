// Package pgstore keeps job configs and execution history in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/platform/pg"
	"jobkeeper/internal/shared"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store over a pgx pool.
type Store struct {
	pool     *pgxpool.Pool
	tx       *pg.TxRunner
	ownsPool bool
}

// New wraps an existing pool. The caller keeps ownership of pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, tx: pg.NewTxRunner(pool)}
}

// Open migrates the database behind dsn and connects a pool the store owns.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if _, err := Migrate(dsn); err != nil {
		return nil, err
	}
	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := New(pool)
	s.ownsPool = true
	return s, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string) (pg.MigrationInfo, error) {
	return pg.ApplyMigrationsFromFS(dsn, migrationsFS, "migrations")
}

func (s *Store) FindJobConfig(ctx context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	const q = `SELECT job_name, schedule, enabled, updated_at, COALESCE(updated_by, '')
		FROM job_configs WHERE job_name = $1`

	var cfg jobs.PersistedJobConfig
	err := s.tx.GetQuerier(ctx).QueryRow(ctx, q, name).
		Scan(&cfg.JobName, &cfg.Schedule, &cfg.Enabled, &cfg.UpdatedAt, &cfg.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.PersistedJobConfig{}, false, nil
	}
	if err != nil {
		return jobs.PersistedJobConfig{}, false, fmt.Errorf("pgstore: find job config: %w", err)
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, true, nil
}

func (s *Store) CreateJobConfig(ctx context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	const q = `INSERT INTO job_configs (job_name, schedule, enabled, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (job_name) DO NOTHING`

	tag, err := s.tx.GetQuerier(ctx).Exec(ctx, q, cfg.JobName, cfg.Schedule, cfg.Enabled, cfg.UpdatedAt, cfg.UpdatedBy)
	if err != nil {
		return jobs.PersistedJobConfig{}, fmt.Errorf("pgstore: create job config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobs.PersistedJobConfig{}, fmt.Errorf("job config %q: %w", cfg.JobName, shared.ErrConflict)
	}
	return cfg, nil
}

// UpsertJobConfig only overwrites the columns present in patch.
func (s *Store) UpsertJobConfig(ctx context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	const q = `INSERT INTO job_configs (job_name, schedule, enabled, updated_at, updated_by)
		VALUES ($1, COALESCE($2::text, $3), COALESCE($4::boolean, $5), $6, NULLIF($7, ''))
		ON CONFLICT (job_name) DO UPDATE SET
			schedule   = COALESCE($2::text, job_configs.schedule),
			enabled    = COALESCE($4::boolean, job_configs.enabled),
			updated_at = $6,
			updated_by = COALESCE(NULLIF($7, ''), job_configs.updated_by)`

	_, err := s.tx.GetQuerier(ctx).Exec(ctx, q,
		name, patch.Schedule, seed.Schedule, patch.Enabled, seed.Enabled, patch.UpdatedAt, patch.UpdatedBy)
	if err != nil {
		return fmt.Errorf("pgstore: upsert job config: %w", err)
	}
	return nil
}

func (s *Store) DeleteJobConfig(ctx context.Context, name string) error {
	if _, err := s.tx.GetQuerier(ctx).Exec(ctx, `DELETE FROM job_configs WHERE job_name = $1`, name); err != nil {
		return fmt.Errorf("pgstore: delete job config: %w", err)
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, rec jobs.ExecutionRecord) error {
	const q = `INSERT INTO job_executions (id, job_name, started_at, status) VALUES ($1, $2, $3, $4)`

	if _, err := s.tx.GetQuerier(ctx).Exec(ctx, q, rec.ID, rec.JobName, rec.StartedAt, string(rec.Status)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("execution %s: %w", rec.ID, shared.ErrConflict)
		}
		return fmt.Errorf("pgstore: create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, outcome jobs.ExecutionOutcome) error {
	if !outcome.Status.Terminal() {
		return shared.Validationf("execution %s: status %q is not terminal", id, outcome.Status)
	}

	const update = `UPDATE job_executions
		SET status = $1, completed_at = $2, duration_ms = $3, error = $4
		WHERE id = $5 AND status = 'running'`

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.GetQuerier(ctx)
		tag, err := q.Exec(ctx, update, string(outcome.Status), outcome.CompletedAt, outcome.DurationMs, outcome.Error, id)
		if err != nil {
			return fmt.Errorf("pgstore: update execution: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var status string
		err = q.QueryRow(ctx, `SELECT status FROM job_executions WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("execution %s: %w", id, shared.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("pgstore: update execution: %w", err)
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
		args = append(args, filter.JobName)
		where = append(where, fmt.Sprintf("job_name = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT id::text, job_name, started_at, completed_at, duration_ms, status, error FROM job_executions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.tx.GetQuerier(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list executions: %w", err)
	}
	defer rows.Close()

	out := make([]jobs.ExecutionRecord, 0)
	for rows.Next() {
		var (
			rec    jobs.ExecutionRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.JobName, &rec.StartedAt, &rec.CompletedAt, &rec.DurationMs, &status, &rec.Error); err != nil {
			return nil, fmt.Errorf("pgstore: scan execution: %w", err)
		}
		rec.Status = jobs.Status(status)
		rec.StartedAt = rec.StartedAt.UTC()
		if rec.CompletedAt != nil {
			t := rec.CompletedAt.UTC()
			rec.CompletedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list executions: %w", err)
	}
	return out, nil
}

func (s *Store) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.tx.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM job_executions WHERE status <> 'running' AND started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("pgstore: prune executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, s.pool)
}

// Close closes the pool only when the store opened it.
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
