package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus estado de un lote.
type LotStatus string

const (
	LotActive   LotStatus = "active"
	LotConsumed LotStatus = "consumed"
	LotExpired  LotStatus = "expired"
	LotRecalled LotStatus = "recalled"
)

// QualityStatus estado de calidad de un lote; solo los aprobados son asignables.
type QualityStatus string

const (
	QualityPending    QualityStatus = "pending"
	QualityApproved   QualityStatus = "approved"
	QualityQuarantine QualityStatus = "quarantine"
	QualityRejected   QualityStatus = "rejected"
)

// LotKey identifica la ubicación de un lote: el número de lote es único por producto
// y cada posición donde hay existencias del lote tiene su propio registro.
type LotKey struct {
	Position  PositionKey
	LotNumber string
}

// String forma canónica de la clave.
func (k LotKey) String() string {
	return k.Position.String() + "|" + k.LotNumber
}

// Lot agrupación de recepción que comparte vencimiento y estado de calidad.
type Lot struct {
	ID              string
	Key             LotKey
	InitialQuantity decimal.Decimal
	CurrentQuantity decimal.Decimal
	ExpiryDate      *time.Time
	ReceivedDate    time.Time
	QualityStatus   QualityStatus
	Status          LotStatus
	UpdatedAt       time.Time
}

// ProductID atajo al producto del lote.
func (l *Lot) ProductID() string { return l.Key.Position.ProductID }

// WarehouseID atajo a la bodega del lote.
func (l *Lot) WarehouseID() string { return l.Key.Position.WarehouseID }

// IsExpiredAt indica si el vencimiento es anterior al día de referencia.
func (l *Lot) IsExpiredAt(today time.Time) bool {
	if l.ExpiryDate == nil {
		return false
	}
	return l.ExpiryDate.Before(truncateDay(today))
}

// Clone copia profunda.
func (l *Lot) Clone() *Lot {
	if l == nil {
		return nil
	}
	c := *l
	c.ExpiryDate = cloneTime(l.ExpiryDate)
	return &c
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
