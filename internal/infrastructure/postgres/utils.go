package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Querier operaciones comunes a pgxpool.Pool y pgx.Tx; los repositorios funcionan con ambos.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner abre transacciones (pgxpool.Pool o pgxmock en tests).
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// mapTxError traduce los fallos de concurrencia de PostgreSQL a domain.ErrConcurrencyConflict.
// Un CHECK violado sobre cantidades indica que otro escritor ganó la carrera.
func mapTxError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrConcurrencyConflict, err))
	case codeCheckViolation:
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrInsufficientStock, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
