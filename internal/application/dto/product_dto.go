package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductResponse salida de un producto del catálogo. Los umbrales nulos se omiten.
type ProductResponse struct {
	ID            string              `json:"id"`
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	IsSerialized  bool                `json:"is_serialized"`
	IsLotTracked  bool                `json:"is_lot_tracked"`
	HasExpiry     bool                `json:"has_expiry"`
	ReorderPoint  decimal.NullDecimal `json:"reorder_point"`
	MinStockLevel decimal.NullDecimal `json:"min_stock_level"`
	MaxStockLevel decimal.NullDecimal `json:"max_stock_level"`
	ShelfLifeDays int                 `json:"shelf_life_days,omitempty"`
	WarrantyDays  int                 `json:"warranty_days,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ProductListResponse lista paginada de productos.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}
