package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType tipo de movimiento de inventario.
type MovementType string

const (
	MovementReceipt    MovementType = "receipt"
	MovementIssue      MovementType = "issue"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementScrap      MovementType = "scrap"
	MovementCycleCount MovementType = "cycle_count"
)

// Valid indica si el tipo es conocido.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementIssue, MovementTransfer, MovementAdjustment,
		MovementReturn, MovementScrap, MovementCycleCount:
		return true
	}
	return false
}

// LineRole lado de una línea de movimiento.
type LineRole string

const (
	LineDebit  LineRole = "debit"  // sale de la posición
	LineCredit LineRole = "credit" // entra a la posición
)

// MovementLine efecto de un movimiento sobre una posición. En un traslado hay dos líneas enlazadas.
type MovementLine struct {
	Role           LineRole
	Position       PositionKey
	OnHandDelta    decimal.Decimal
	AllocatedDelta decimal.Decimal
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
}

// LotEntry consumo o ingreso sobre un lote concreto (delta con signo).
type LotEntry struct {
	Lot        LotKey
	Quantity   decimal.Decimal
	ExpiryDate *time.Time
}

// SerialEntry cambio de estado de una unidad serializada dentro del movimiento.
type SerialEntry struct {
	SerialNumber string
	From         SerialStatus
	To           SerialStatus
	Position     PositionKey
}

// Movement registro inmutable del ledger; se agrega una vez y nunca se modifica.
// MovementNumber es monotónico (puede tener huecos por transacciones abortadas).
type Movement struct {
	ID             string
	MovementNumber int64
	Type           MovementType
	ProductID      string
	VariantID      string
	WarehouseID    string
	LocationID     string
	ToWarehouseID  string
	ToLocationID   string
	Quantity       decimal.Decimal
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
	UnitCost       decimal.NullDecimal
	Lines          []MovementLine
	Lots           []LotEntry
	Serials        []SerialEntry
	Reference      Reference
	ReversalOf     int64 // número del movimiento reversado (0 si no es reverso)
	Actor          string
	Notes          string
	CreatedAt      time.Time
}

// TouchedPairs pares producto/bodega afectados por el movimiento, sin duplicados.
func (m *Movement) TouchedPairs() []ProductWarehouse {
	seen := make(map[ProductWarehouse]struct{}, len(m.Lines))
	out := make([]ProductWarehouse, 0, len(m.Lines))
	for _, l := range m.Lines {
		pw := ProductWarehouse{ProductID: l.Position.ProductID, WarehouseID: l.Position.WarehouseID}
		if _, ok := seen[pw]; ok {
			continue
		}
		seen[pw] = struct{}{}
		out = append(out, pw)
	}
	return out
}

// ProductWarehouse par producto/bodega (granularidad de alertas e invariante de lotes).
type ProductWarehouse struct {
	ProductID   string
	WarehouseID string
}

// CommitEvent se publica tras cada commit exitoso; también reporta lotes vencidos
// excluidos por el asignador aunque el movimiento haya fallado.
type CommitEvent struct {
	MovementNumber int64
	Type           MovementType
	Pairs          []ProductWarehouse
	ExpiredLots    []Lot
	At             time.Time
}

// Clone copia profunda (las líneas se duplican; Reference es un valor inmutable).
func (m *Movement) Clone() *Movement {
	if m == nil {
		return nil
	}
	c := *m
	c.Lines = append([]MovementLine(nil), m.Lines...)
	c.Lots = append([]LotEntry(nil), m.Lots...)
	c.Serials = append([]SerialEntry(nil), m.Serials...)
	return &c
}
