// Пакет repository — хранение профилей и метаданных конспектов в PostgreSQL.
// Запросы — SQL через pgx без ORM; строки сканируются в доменные модели.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — строки с таким ключом нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким ключом уже есть.
	ErrConflict = errors.New("запись уже существует")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx.
// Begin на pgx.Tx открывает savepoint, поэтому withTx работает в обоих случаях.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// withTx выполняет fn в транзакции: коммит при nil, иначе откат.
func withTx(ctx context.Context, db DBTX, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit откат ничего не делает

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("коммит транзакции: %w", err)
	}
	return nil
}

// isUniqueViolation: ошибка PostgreSQL 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
