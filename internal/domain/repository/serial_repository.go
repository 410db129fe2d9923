package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// SerialFilter criterios de consulta de unidades serializadas.
type SerialFilter struct {
	ProductID   string
	WarehouseID string
	LocationID  string
	Status      entity.SerialStatus
}

// SerialRepository puerto de persistencia del registro de seriales (unicidad por producto).
type SerialRepository interface {
	// Get devuelve (nil, nil) si el serial nunca se registró.
	Get(ctx context.Context, productID, serialNumber string) (*entity.SerialUnit, error)
	Save(ctx context.Context, unit *entity.SerialUnit) error
	List(ctx context.Context, filter SerialFilter) ([]*entity.SerialUnit, error)
}
