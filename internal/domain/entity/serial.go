package entity

import "time"

// SerialStatus estado de una unidad serializada.
type SerialStatus string

const (
	SerialInStock   SerialStatus = "in_stock"
	SerialAllocated SerialStatus = "allocated"
	SerialShipped   SerialStatus = "shipped"
	SerialSold      SerialStatus = "sold"
	SerialReturned  SerialStatus = "returned"
	SerialScrapped  SerialStatus = "scrapped"
	SerialWarranty  SerialStatus = "warranty"
)

// SerialEventCause origen de los eventos que no provienen de un movimiento de stock.
type SerialEventCause string

const (
	SerialCauseAllocation SerialEventCause = "allocation"
	// SerialCauseRelease liberación de reserva: la máquina de estados solo vuelve de allocated
	// a in_stock pasando por returned, así que estos eventos no son devoluciones de cliente.
	SerialCauseRelease SerialEventCause = "release"
)

// SerialEvent entrada del historial de una unidad; MovementNumber 0 = sin movimiento de stock (reserva)
// y en ese caso Cause indica el origen.
type SerialEvent struct {
	MovementNumber int64
	From           SerialStatus
	To             SerialStatus
	WarehouseID    string
	LocationID     string
	At             time.Time
	Cause          SerialEventCause
}

// SerialUnit unidad física con identidad propia. Nunca se elimina (auditoría).
type SerialUnit struct {
	ProductID     string
	VariantID     string
	SerialNumber  string
	Status        SerialStatus
	WarehouseID   string
	LocationID    string
	WarrantyStart *time.Time
	WarrantyEnd   *time.Time
	History       []SerialEvent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SerialLockKey clave de exclusión mutua de un serial (unicidad por producto).
func SerialLockKey(productID, serialNumber string) string {
	return "serial:" + productID + "|" + serialNumber
}

// Position clave de la posición donde está ubicada la unidad.
func (u *SerialUnit) Position() PositionKey {
	return PositionKey{ProductID: u.ProductID, VariantID: u.VariantID, WarehouseID: u.WarehouseID, LocationID: u.LocationID}
}

// Clone copia profunda.
func (u *SerialUnit) Clone() *SerialUnit {
	if u == nil {
		return nil
	}
	c := *u
	c.WarrantyStart = cloneTime(u.WarrantyStart)
	c.WarrantyEnd = cloneTime(u.WarrantyEnd)
	c.History = append([]SerialEvent(nil), u.History...)
	return &c
}
