package dto

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// AcknowledgeAlertRequest body para reconocer o resolver una alerta.
type AcknowledgeAlertRequest struct {
	By string `json:"by"`
}

// AlertResponse salida de una alerta.
type AlertResponse struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	WarehouseID     string           `json:"warehouse_id"`
	Type            string           `json:"type"`
	Severity        string           `json:"severity"`
	Status          string           `json:"status"`
	CurrentQuantity decimal.Decimal  `json:"current_quantity"`
	Threshold       *decimal.Decimal `json:"threshold,omitempty"`
	LotNumber       string           `json:"lot_number,omitempty"`
	Message         string           `json:"message"`
	Occurrences     int              `json:"occurrences"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	AcknowledgedAt  *time.Time       `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string           `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy      string           `json:"resolved_by,omitempty"`
}

// NewAlertResponse mapea la alerta.
func NewAlertResponse(a *entity.Alert) AlertResponse {
	r := AlertResponse{
		ID:              a.ID,
		ProductID:       a.ProductID,
		WarehouseID:     a.WarehouseID,
		Type:            string(a.Type),
		Severity:        string(a.Severity),
		Status:          string(a.Status),
		CurrentQuantity: a.CurrentQuantity,
		LotNumber:       a.LotNumber,
		Message:         a.Message,
		Occurrences:     a.Occurrences,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		AcknowledgedAt:  a.AcknowledgedAt,
		AcknowledgedBy:  a.AcknowledgedBy,
		ResolvedAt:      a.ResolvedAt,
		ResolvedBy:      a.ResolvedBy,
	}
	if a.Threshold.Valid {
		t := a.Threshold.Decimal
		r.Threshold = &t
	}
	return r
}

// AlertListResponse lista de alertas.
type AlertListResponse struct {
	Items []AlertResponse `json:"items"`
}
