package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL. La exclusión por clave usa
// advisory locks de transacción, tomados en orden y liberados en el commit o rollback.
type TxRunner struct {
	db          Beginner
	lockTimeout time.Duration
}

// NewTxRunner construye el runner. lockTimeout acota la espera de cada lock (0 = 2s).
func NewTxRunner(db Beginner, lockTimeout time.Duration) *TxRunner {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &TxRunner{db: db, lockTimeout: lockTimeout}
}

// Run inicia una transacción, bloquea lockKeys en orden, ejecuta fn con repos atados a la tx y hace
// Commit o Rollback. Un lock no obtenido a tiempo devuelve domain.ErrConcurrencyConflict.
func (r *TxRunner) Run(ctx context.Context, lockKeys []string, fn func(
	movRepo repository.MovementRepository,
	positionRepo repository.PositionRepository,
	lotRepo repository.LotRepository,
	serialRepo repository.SerialRepository,
) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.lock(ctx, tx, lockKeys); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	if err := fn(
		NewMovementRepository(tx),
		NewPositionRepository(tx),
		NewLotRepository(tx),
		NewSerialRepository(tx),
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError("commit transaction", err)
	}
	return nil
}

func (r *TxRunner) lock(ctx context.Context, tx pgx.Tx, lockKeys []string) error {
	if len(lockKeys) == 0 {
		return nil
	}
	keys := slices.Clone(lockKeys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return mapTxError("lock "+k, err)
		}
	}
	return nil
}
