package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// AlertFilter filtros de consulta de alertas; campos vacíos no filtran.
type AlertFilter struct {
	ProductID   string
	WarehouseID string
	Type        entity.AlertType
	Status      entity.AlertStatus
	OpenOnly    bool
}

// AlertRepository puerto de persistencia de alertas.
type AlertRepository interface {
	Create(ctx context.Context, alert *entity.Alert) error
	Update(ctx context.Context, alert *entity.Alert) error
	// GetByID devuelve (nil, nil) si no existe.
	GetByID(ctx context.Context, id string) (*entity.Alert, error)
	// FindOpen devuelve la alerta activa o reconocida para la clave, o (nil, nil).
	FindOpen(ctx context.Context, productID, warehouseID string, alertType entity.AlertType) (*entity.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]*entity.Alert, error)
}
