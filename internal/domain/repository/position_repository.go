package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// PositionFilter criterios de consulta de posiciones; campos vacíos no filtran.
type PositionFilter struct {
	ProductID   string
	VariantID   string
	WarehouseID string
	LocationID  string
	NonZeroOnly bool
}

// PositionRepository puerto de persistencia del ledger de posiciones.
// Usado dentro de transacciones (TxRunner) para escrituras y fuera de ellas para lecturas.
type PositionRepository interface {
	// Get devuelve la posición o una posición vacía si nunca tuvo movimientos.
	Get(ctx context.Context, key entity.PositionKey) (*entity.Position, error)
	Save(ctx context.Context, pos *entity.Position) error
	List(ctx context.Context, filter PositionFilter) ([]*entity.Position, error)
}
