package dto

import (
	"encoding/json"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// RegisterMovementRequest body para POST /api/v1/movements.
type RegisterMovementRequest struct {
	Type          string           `json:"type"`
	ProductID     string           `json:"product_id"`
	VariantID     string           `json:"variant_id,omitempty"`
	WarehouseID   string           `json:"warehouse_id"`
	LocationID    string           `json:"location_id"`
	ToWarehouseID string           `json:"to_warehouse_id,omitempty"`
	ToLocationID  string           `json:"to_location_id,omitempty"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Direction     string           `json:"direction,omitempty"` // increase | decrease (ajustes)
	LotNumber     string           `json:"lot_number,omitempty"`
	ExpiryDate    *time.Time       `json:"expiry_date,omitempty"`
	QualityStatus string           `json:"quality_status,omitempty"`
	SerialNumbers []string         `json:"serial_numbers,omitempty"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	FromAllocated bool             `json:"from_allocated,omitempty"`
	ReferenceKind string           `json:"reference_kind,omitempty"` // purchase | sales | transfer | count
	Reference     json.RawMessage  `json:"reference,omitempty"`
	Actor         string           `json:"actor,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// ReverseMovementRequest body para POST /api/v1/movements/{number}/reverse.
type ReverseMovementRequest struct {
	Actor string `json:"actor,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// AllocationRequest body para reservar o liberar stock.
type AllocationRequest struct {
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id,omitempty"`
	WarehouseID   string          `json:"warehouse_id"`
	LocationID    string          `json:"location_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	SerialNumbers []string        `json:"serial_numbers,omitempty"`
	Actor         string          `json:"actor,omitempty"`
}

// LotStatusRequest body para retirar o vencer un lote.
type LotStatusRequest struct {
	Status string `json:"status"` // recalled | expired
	Actor  string `json:"actor,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// LotQualityRequest body para cambiar la calidad de un lote.
type LotQualityRequest struct {
	QualityStatus string `json:"quality_status"`
}

// PositionResponse salida de una posición.
type PositionResponse struct {
	ProductID      string          `json:"product_id"`
	VariantID      string          `json:"variant_id,omitempty"`
	WarehouseID    string          `json:"warehouse_id"`
	LocationID     string          `json:"location_id"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Allocated      decimal.Decimal `json:"allocated"`
	Available      decimal.Decimal `json:"available"`
	InTransit      decimal.Decimal `json:"in_transit"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	LastReceivedAt *time.Time      `json:"last_received_at,omitempty"`
	LastIssuedAt   *time.Time      `json:"last_issued_at,omitempty"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewPositionResponse mapea la entidad a la respuesta.
func NewPositionResponse(p *entity.Position) PositionResponse {
	return PositionResponse{
		ProductID:      p.Key.ProductID,
		VariantID:      p.Key.VariantID,
		WarehouseID:    p.Key.WarehouseID,
		LocationID:     p.Key.LocationID,
		OnHand:         p.OnHand,
		Allocated:      p.Allocated,
		Available:      p.Available,
		InTransit:      p.InTransit,
		AverageCost:    p.AverageCost,
		LastReceivedAt: p.LastReceivedAt,
		LastIssuedAt:   p.LastIssuedAt,
		LastMovementAt: p.LastMovementAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// PositionListResponse lista de posiciones.
type PositionListResponse struct {
	Items []PositionResponse `json:"items"`
}

// UtilizationResponse agregado de una bodega.
type UtilizationResponse struct {
	WarehouseID    string          `json:"warehouse_id"`
	Positions      int             `json:"positions"`
	Products       int             `json:"products"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Allocated      decimal.Decimal `json:"allocated"`
	Available      decimal.Decimal `json:"available"`
	InTransit      decimal.Decimal `json:"in_transit"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
}

// NewUtilizationResponse mapea el agregado.
func NewUtilizationResponse(u *entity.WarehouseUtilization) UtilizationResponse {
	return UtilizationResponse{
		WarehouseID:    u.WarehouseID,
		Positions:      u.Positions,
		Products:       u.Products,
		OnHand:         u.OnHand,
		Allocated:      u.Allocated,
		Available:      u.Available,
		InTransit:      u.InTransit,
		LastMovementAt: u.LastMovementAt,
	}
}

// MovementLineResponse efecto sobre una posición.
type MovementLineResponse struct {
	Role           string          `json:"role"`
	ProductID      string          `json:"product_id"`
	VariantID      string          `json:"variant_id,omitempty"`
	WarehouseID    string          `json:"warehouse_id"`
	LocationID     string          `json:"location_id"`
	OnHandDelta    decimal.Decimal `json:"on_hand_delta"`
	AllocatedDelta decimal.Decimal `json:"allocated_delta"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
}

// LotEntryResponse consumo o ingreso de lote dentro de un movimiento.
type LotEntryResponse struct {
	LotNumber   string          `json:"lot_number"`
	WarehouseID string          `json:"warehouse_id"`
	LocationID  string          `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// SerialEntryResponse transición de una unidad dentro de un movimiento.
type SerialEntryResponse struct {
	SerialNumber string `json:"serial_number"`
	From         string `json:"from,omitempty"`
	To           string `json:"to"`
	WarehouseID  string `json:"warehouse_id"`
	LocationID   string `json:"location_id"`
}

// MovementResponse registro del ledger. También es el formato de cada línea del archivo NDJSON.
type MovementResponse struct {
	ID             string                 `json:"id"`
	MovementNumber int64                  `json:"movement_number"`
	Type           string                 `json:"type"`
	ProductID      string                 `json:"product_id"`
	VariantID      string                 `json:"variant_id,omitempty"`
	WarehouseID    string                 `json:"warehouse_id"`
	LocationID     string                 `json:"location_id"`
	ToWarehouseID  string                 `json:"to_warehouse_id,omitempty"`
	ToLocationID   string                 `json:"to_location_id,omitempty"`
	Quantity       decimal.Decimal        `json:"quantity"`
	QuantityBefore decimal.Decimal        `json:"quantity_before"`
	QuantityAfter  decimal.Decimal        `json:"quantity_after"`
	UnitCost       *decimal.Decimal       `json:"unit_cost,omitempty"`
	Lines          []MovementLineResponse `json:"lines"`
	Lots           []LotEntryResponse     `json:"lots,omitempty"`
	Serials        []SerialEntryResponse  `json:"serials,omitempty"`
	ReferenceKind  string                 `json:"reference_kind,omitempty"`
	Reference      json.RawMessage        `json:"reference,omitempty"`
	ReversalOf     int64                  `json:"reversal_of,omitempty"`
	Actor          string                 `json:"actor,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewMovementResponse mapea el movimiento. Una referencia que no se puede serializar se omite.
func NewMovementResponse(m *entity.Movement) MovementResponse {
	r := MovementResponse{
		ID:             m.ID,
		MovementNumber: m.MovementNumber,
		Type:           string(m.Type),
		ProductID:      m.ProductID,
		VariantID:      m.VariantID,
		WarehouseID:    m.WarehouseID,
		LocationID:     m.LocationID,
		ToWarehouseID:  m.ToWarehouseID,
		ToLocationID:   m.ToLocationID,
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		Lines:          make([]MovementLineResponse, 0, len(m.Lines)),
		ReversalOf:     m.ReversalOf,
		Actor:          m.Actor,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
	}
	if m.UnitCost.Valid {
		c := m.UnitCost.Decimal
		r.UnitCost = &c
	}
	for _, l := range m.Lines {
		r.Lines = append(r.Lines, MovementLineResponse{
			Role:           string(l.Role),
			ProductID:      l.Position.ProductID,
			VariantID:      l.Position.VariantID,
			WarehouseID:    l.Position.WarehouseID,
			LocationID:     l.Position.LocationID,
			OnHandDelta:    l.OnHandDelta,
			AllocatedDelta: l.AllocatedDelta,
			QuantityBefore: l.QuantityBefore,
			QuantityAfter:  l.QuantityAfter,
		})
	}
	for _, e := range m.Lots {
		r.Lots = append(r.Lots, LotEntryResponse{
			LotNumber:   e.Lot.LotNumber,
			WarehouseID: e.Lot.Position.WarehouseID,
			LocationID:  e.Lot.Position.LocationID,
			Quantity:    e.Quantity,
			ExpiryDate:  e.ExpiryDate,
		})
	}
	for _, s := range m.Serials {
		r.Serials = append(r.Serials, SerialEntryResponse{
			SerialNumber: s.SerialNumber,
			From:         string(s.From),
			To:           string(s.To),
			WarehouseID:  s.Position.WarehouseID,
			LocationID:   s.Position.LocationID,
		})
	}
	if kind, payload, err := entity.EncodeReference(m.Reference); err == nil && kind != "" {
		r.ReferenceKind = string(kind)
		r.Reference = payload
	}
	return r
}

// MovementResultResponse respuesta de registrar o reversar un movimiento.
type MovementResultResponse struct {
	Movement  MovementResponse   `json:"movement"`
	Positions []PositionResponse `json:"positions"`
}

// MovementListResponse página de movimientos. NextAfter es el número a usar como cursor.
type MovementListResponse struct {
	Items     []MovementResponse `json:"items"`
	NextAfter int64              `json:"next_after,omitempty"`
}

// LotResponse ubicación de un lote.
type LotResponse struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	VariantID       string          `json:"variant_id,omitempty"`
	WarehouseID     string          `json:"warehouse_id"`
	LocationID      string          `json:"location_id"`
	LotNumber       string          `json:"lot_number"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ReceivedDate    time.Time       `json:"received_date"`
	QualityStatus   string          `json:"quality_status"`
	Status          string          `json:"status"`
}

// NewLotResponse mapea el lote.
func NewLotResponse(l *entity.Lot) LotResponse {
	return LotResponse{
		ID:              l.ID,
		ProductID:       l.Key.Position.ProductID,
		VariantID:       l.Key.Position.VariantID,
		WarehouseID:     l.Key.Position.WarehouseID,
		LocationID:      l.Key.Position.LocationID,
		LotNumber:       l.Key.LotNumber,
		InitialQuantity: l.InitialQuantity,
		CurrentQuantity: l.CurrentQuantity,
		ExpiryDate:      l.ExpiryDate,
		ReceivedDate:    l.ReceivedDate,
		QualityStatus:   string(l.QualityStatus),
		Status:          string(l.Status),
	}
}

// LotListResponse lista de lotes (orden FEFO).
type LotListResponse struct {
	Items []LotResponse `json:"items"`
}

// SerialEventResponse entrada del historial de una unidad.
type SerialEventResponse struct {
	MovementNumber int64     `json:"movement_number,omitempty"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to"`
	WarehouseID    string    `json:"warehouse_id"`
	LocationID     string    `json:"location_id"`
	At             time.Time `json:"at"`
}

// SerialResponse unidad serializada.
type SerialResponse struct {
	ProductID     string                `json:"product_id"`
	VariantID     string                `json:"variant_id,omitempty"`
	SerialNumber  string                `json:"serial_number"`
	Status        string                `json:"status"`
	WarehouseID   string                `json:"warehouse_id"`
	LocationID    string                `json:"location_id"`
	WarrantyStart *time.Time            `json:"warranty_start,omitempty"`
	WarrantyEnd   *time.Time            `json:"warranty_end,omitempty"`
	History       []SerialEventResponse `json:"history,omitempty"`
}

// NewSerialResponse mapea la unidad; withHistory incluye el historial.
func NewSerialResponse(u *entity.SerialUnit, withHistory bool) SerialResponse {
	r := SerialResponse{
		ProductID:     u.ProductID,
		VariantID:     u.VariantID,
		SerialNumber:  u.SerialNumber,
		Status:        string(u.Status),
		WarehouseID:   u.WarehouseID,
		LocationID:    u.LocationID,
		WarrantyStart: u.WarrantyStart,
		WarrantyEnd:   u.WarrantyEnd,
	}
	if withHistory {
		for _, e := range u.History {
			r.History = append(r.History, SerialEventResponse{
				MovementNumber: e.MovementNumber,
				From:           string(e.From),
				To:             string(e.To),
				WarehouseID:    e.WarehouseID,
				LocationID:     e.LocationID,
				At:             e.At,
			})
		}
	}
	return r
}

// SerialListResponse lista de unidades.
type SerialListResponse struct {
	Items []SerialResponse `json:"items"`
}

// ReplenishmentSuggestionDTO sugerencia de reposición para un producto que está en o
// por debajo de su punto de reorden en una bodega.
type ReplenishmentSuggestionDTO struct {
	ProductID          string          `json:"product_id"`
	SKU                string          `json:"sku"`
	ProductName        string          `json:"product_name"`
	WarehouseID        string          `json:"warehouse_id"`
	CurrentStock       decimal.Decimal `json:"current_stock"`
	ReorderPoint       decimal.Decimal `json:"reorder_point"`
	IdealStock         decimal.Decimal `json:"ideal_stock"`          // MaxStockLevel o ReorderPoint * 1.5
	SuggestedOrderQty  decimal.Decimal `json:"suggested_order_qty"`  // IdealStock - CurrentStock
	UnitCost           decimal.Decimal `json:"unit_cost"`            // costo promedio ponderado
	EstimatedOrderCost decimal.Decimal `json:"estimated_order_cost"` // SuggestedOrderQty * UnitCost
	Priority           int             `json:"priority"`             // 1 = más urgente
}

// LotSummaryResponse un número de lote con todas sus ubicaciones.
type LotSummaryResponse struct {
	ProductID     string          `json:"product_id"`
	LotNumber     string          `json:"lot_number"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	QualityStatus string          `json:"quality_status"`
	Total         decimal.Decimal `json:"total"`
	Placements    []LotResponse   `json:"placements"`
}
