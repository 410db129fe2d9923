package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// WarehouseRepository puerto de solo lectura hacia bodegas y ubicaciones (DIP).
// GetByID y GetLocation devuelven (nil, nil) cuando no existe.
type WarehouseRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Warehouse, error)
	GetLocation(ctx context.Context, warehouseID, locationID string) (*entity.Location, error)
	List(ctx context.Context) ([]*entity.Warehouse, error)
}
