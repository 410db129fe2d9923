package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PositionKey clave compuesta de una posición de inventario.
// VariantID vacío representa el producto base.
type PositionKey struct {
	ProductID   string
	VariantID   string
	WarehouseID string
	LocationID  string
}

// String devuelve la forma canónica de la clave (usada para locks y caché).
func (k PositionKey) String() string {
	return strings.Join([]string{k.ProductID, k.VariantID, k.WarehouseID, k.LocationID}, "|")
}

// LockKey clave de exclusión mutua para escrituras sobre la posición.
func (k PositionKey) LockKey() string {
	return "position:" + k.String()
}

// Less orden global de claves; las transferencias bloquean en este orden.
func (k PositionKey) Less(o PositionKey) bool {
	return k.String() < o.String()
}

// Position stock de un producto/variante en una bodega y ubicación.
// Invariante: OnHand = Allocated + Available, todos ≥ 0.
type Position struct {
	Key            PositionKey
	OnHand         decimal.Decimal
	Allocated      decimal.Decimal
	Available      decimal.Decimal
	InTransit      decimal.Decimal
	AverageCost    decimal.Decimal // costo promedio ponderado de la posición
	LastReceivedAt *time.Time
	LastIssuedAt   *time.Time
	LastMovementAt *time.Time
	UpdatedAt      time.Time
}

// NewPosition posición vacía, creada perezosamente en el primer movimiento.
func NewPosition(key PositionKey) *Position {
	return &Position{
		Key:         key,
		OnHand:      decimal.Zero,
		Allocated:   decimal.Zero,
		Available:   decimal.Zero,
		InTransit:   decimal.Zero,
		AverageCost: decimal.Zero,
	}
}

// Clone copia profunda (los punteros de tiempo se duplican).
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.LastReceivedAt = cloneTime(p.LastReceivedAt)
	c.LastIssuedAt = cloneTime(p.LastIssuedAt)
	c.LastMovementAt = cloneTime(p.LastMovementAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// WarehouseUtilization agregado derivado en lectura a partir de las posiciones de una bodega.
type WarehouseUtilization struct {
	WarehouseID    string
	Positions      int
	Products       int
	OnHand         decimal.Decimal
	Allocated      decimal.Decimal
	Available      decimal.Decimal
	InTransit      decimal.Decimal
	LastMovementAt *time.Time
}
