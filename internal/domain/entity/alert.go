package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType condición operativa vigilada por el motor de alertas.
type AlertType string

const (
	AlertLowStock      AlertType = "low_stock"
	AlertOverstock     AlertType = "overstock"
	AlertExpiryWarning AlertType = "expiry_warning"
	AlertNoMovement    AlertType = "no_movement"
)

// AlertSeverity severidad de la alerta.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// AlertStatus estado de la alerta. Las transiciones son monotónicas: active -> acknowledged -> resolved.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// IsOpen indica si la alerta aún no fue resuelta.
func (s AlertStatus) IsOpen() bool {
	return s == AlertActive || s == AlertAcknowledged
}

// Alert alerta operativa. Solo hay una abierta por (producto, bodega, tipo).
type Alert struct {
	ID              string
	ProductID       string
	WarehouseID     string
	Type            AlertType
	Severity        AlertSeverity
	Status          AlertStatus
	CurrentQuantity decimal.Decimal
	Threshold       decimal.NullDecimal
	LotNumber       string // lote más próximo a vencer (solo expiry_warning)
	Message         string
	Occurrences     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AcknowledgedAt  *time.Time
	AcknowledgedBy  string
	ResolvedAt      *time.Time
	ResolvedBy      string
}

// Clone copia profunda.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	return &c
}
