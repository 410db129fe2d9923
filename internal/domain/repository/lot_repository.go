package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LotFilter criterios de consulta de lotes; campos vacíos no filtran.
type LotFilter struct {
	ProductID   string
	WarehouseID string
	LotNumber   string
	Status      entity.LotStatus
}

// LotRepository puerto de persistencia de lotes.
type LotRepository interface {
	// Get devuelve (nil, nil) si el lote no tiene registro en esa posición.
	Get(ctx context.Context, key entity.LotKey) (*entity.Lot, error)
	ListByPosition(ctx context.Context, key entity.PositionKey) ([]*entity.Lot, error)
	List(ctx context.Context, filter LotFilter) ([]*entity.Lot, error)
	Save(ctx context.Context, lot *entity.Lot) error
}
