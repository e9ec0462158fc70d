package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// Querier объединяет методы выполнения запросов, общие для БД и транзакции.
// Хранилища работают с одним интерфейсом независимо от того,
// выполняется ли запрос в транзакции или через основное подключение.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// RetryConfig содержит настройки повторов при SQLITE_BUSY.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// TxRunner выполняет код внутри транзакции: коммит при nil, откат при ошибке.
// Транзакции, упавшие на SQLITE_BUSY, повторяются целиком.
type TxRunner struct {
	DB    *sql.DB
	Retry RetryConfig
}

// NewTxRunner создает TxRunner с настройками повторов по умолчанию.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{
		DB: db,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
}

// WithinTx выполняет fn внутри транзакции.
// Транзакция доступна внутри fn через GetQuerier(ctx).
// Вложенный вызов переиспользует внешнюю транзакцию.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	delay := r.Retry.InitialDelay
	var err error
	for attempt := 1; attempt <= max(r.Retry.MaxAttempts, 1); attempt++ {
		err = r.executeTx(ctx, fn)
		if err == nil || !IsBusyError(err) || attempt == r.Retry.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > r.Retry.MaxDelay {
			delay = r.Retry.MaxDelay
		}
	}
	return err
}

// GetQuerier возвращает активную транзакцию из контекста или основное подключение.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.DB
}

func (r *TxRunner) executeTx(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// IsBusyError проверяет, является ли ошибка SQLITE_BUSY / SQLITE_LOCKED.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
