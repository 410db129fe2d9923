package entity

import "time"

// Warehouse representa una bodega donde se almacena inventario (multi-bodega).
type Warehouse struct {
	ID        string
	Code      string
	Name      string
	Status    LifecycleStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive indica si la bodega acepta nuevos movimientos.
func (w *Warehouse) IsActive() bool {
	return w != nil && w.Status != LifecycleArchived
}

// Location ubicación física dentro de una bodega (zona, pasillo, estante).
type Location struct {
	ID          string
	WarehouseID string
	Code        string
	Name        string
	Status      LifecycleStatus
}

// IsActive indica si la ubicación acepta nuevos movimientos.
func (l *Location) IsActive() bool {
	return l != nil && l.Status != LifecycleArchived
}
