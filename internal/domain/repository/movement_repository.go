package repository

import (
	"context"
	"iter"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementFilter filtros de consulta del ledger de movimientos. From/To acotan CreatedAt (inclusive).
type MovementFilter struct {
	ProductID   string
	WarehouseID string
	Type        entity.MovementType
	From        *time.Time
	To          *time.Time
	After       int64 // solo movimientos con número mayor (cursor de paginación)
	Limit       int   // 0 = sin límite
}

// MovementRepository puerto del ledger append-only de movimientos.
type MovementRepository interface {
	// Append asigna MovementNumber y persiste el movimiento; nunca actualiza registros existentes.
	Append(ctx context.Context, m *entity.Movement) error
	// GetByNumber devuelve (nil, nil) si no existe.
	GetByNumber(ctx context.Context, number int64) (*entity.Movement, error)
	// FindReversal devuelve el reverso del movimiento indicado o (nil, nil).
	FindReversal(ctx context.Context, number int64) (*entity.Movement, error)
	// Query recorre los movimientos en orden de MovementNumber. La secuencia es perezosa,
	// finita y de un solo uso.
	Query(ctx context.Context, filter MovementFilter) iter.Seq2[*entity.Movement, error]
}
