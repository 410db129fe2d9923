package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleStatus estado de ciclo de vida de entidades de catálogo (reemplaza el soft-delete).
type LifecycleStatus string

const (
	LifecycleActive   LifecycleStatus = "active"
	LifecycleArchived LifecycleStatus = "archived"
)

// Product representa un producto del catálogo externo. El ledger lo trata como referencia de solo lectura.
// ReorderPoint, MinStockLevel y MaxStockLevel son opcionales (Valid=false = sin umbral).
type Product struct {
	ID            string
	SKU           string
	Name          string
	Status        LifecycleStatus
	IsSerialized  bool
	IsLotTracked  bool
	HasExpiry     bool
	ReorderPoint  decimal.NullDecimal
	MinStockLevel decimal.NullDecimal
	MaxStockLevel decimal.NullDecimal
	ShelfLifeDays int // vida útil por defecto para recepciones sin fecha de vencimiento
	WarrantyDays  int // ventana de garantía de unidades serializadas desde la venta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive indica si el producto acepta nuevos movimientos.
func (p *Product) IsActive() bool {
	return p != nil && p.Status != LifecycleArchived
}

// ProductVariant variante de un producto (talla, color, presentación).
type ProductVariant struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Status    LifecycleStatus
}

// IsActive indica si la variante acepta nuevos movimientos.
func (v *ProductVariant) IsActive() bool {
	return v != nil && v.Status != LifecycleArchived
}
