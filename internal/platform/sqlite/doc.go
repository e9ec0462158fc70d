// Package sqlite предоставляет инфраструктуру SQLite (драйвер modernc.org/sqlite)
// для хранилища планировщика.
//
// Основные возможности:
//   - открытие БД с PRAGMA для каждого соединения (foreign_keys, busy_timeout) и WAL;
//   - TxRunner: транзакции через контекст и повтор при SQLITE_BUSY;
//   - миграции golang-migrate из встроенной fs.FS поверх уже открытого *sql.DB;
//   - тестовые хелперы для in-memory БД.
//
// # Быстрый старт
//
//	db, err := sqlite.NewDB(ctx, "data/jobkeeper.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrationsFS(db, migrations.FS, "migrations"); err != nil {
//		return err
//	}
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.GetQuerier(ctx)
//		_, err := q.ExecContext(ctx, "DELETE FROM job_executions WHERE started_at < ?", cutoff)
//		return err
//	})
package sqlite
