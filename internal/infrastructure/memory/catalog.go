package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// Catalog referencia de solo lectura a productos, variantes, bodegas y ubicaciones.
// El ledger nunca lo modifica; se carga al arrancar (archivo JSON) o desde tests con Put*.
type Catalog struct {
	mu         sync.RWMutex
	products   map[string]*entity.Product
	variants   map[string]map[string]*entity.ProductVariant
	warehouses map[string]*entity.Warehouse
	locations  map[string]map[string]*entity.Location
}

// NewCatalog catálogo vacío.
func NewCatalog() *Catalog {
	return &Catalog{
		products:   make(map[string]*entity.Product),
		variants:   make(map[string]map[string]*entity.ProductVariant),
		warehouses: make(map[string]*entity.Warehouse),
		locations:  make(map[string]map[string]*entity.Location),
	}
}

// PutProduct agrega o reemplaza un producto.
func (c *Catalog) PutProduct(p entity.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Status == "" {
		p.Status = entity.LifecycleActive
	}
	c.products[p.ID] = &p
}

// PutVariant agrega o reemplaza una variante.
func (c *Catalog) PutVariant(v entity.ProductVariant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Status == "" {
		v.Status = entity.LifecycleActive
	}
	if c.variants[v.ProductID] == nil {
		c.variants[v.ProductID] = make(map[string]*entity.ProductVariant)
	}
	c.variants[v.ProductID][v.ID] = &v
}

// PutWarehouse agrega o reemplaza una bodega.
func (c *Catalog) PutWarehouse(w entity.Warehouse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.Status == "" {
		w.Status = entity.LifecycleActive
	}
	c.warehouses[w.ID] = &w
}

// PutLocation agrega o reemplaza una ubicación.
func (c *Catalog) PutLocation(l entity.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l.Status == "" {
		l.Status = entity.LifecycleActive
	}
	if c.locations[l.WarehouseID] == nil {
		c.locations[l.WarehouseID] = make(map[string]*entity.Location)
	}
	c.locations[l.WarehouseID][l.ID] = &l
}

// Products vista ProductRepository del catálogo.
func (c *Catalog) Products() repository.ProductRepository { return catalogProducts{c} }

// Warehouses vista WarehouseRepository del catálogo.
func (c *Catalog) Warehouses() repository.WarehouseRepository { return catalogWarehouses{c} }

type catalogProducts struct{ c *Catalog }

func (r catalogProducts) GetByID(_ context.Context, id string) (*entity.Product, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	p, ok := r.c.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r catalogProducts) GetVariant(_ context.Context, productID, variantID string) (*entity.ProductVariant, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	v, ok := r.c.variants[productID][variantID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r catalogProducts) List(context.Context) ([]*entity.Product, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	out := make([]*entity.Product, 0, len(r.c.products))
	for _, p := range r.c.products {
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *entity.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

type catalogWarehouses struct{ c *Catalog }

func (r catalogWarehouses) GetByID(_ context.Context, id string) (*entity.Warehouse, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	w, ok := r.c.warehouses[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r catalogWarehouses) GetLocation(_ context.Context, warehouseID, locationID string) (*entity.Location, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	l, ok := r.c.locations[warehouseID][locationID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r catalogWarehouses) List(context.Context) ([]*entity.Warehouse, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	out := make([]*entity.Warehouse, 0, len(r.c.warehouses))
	for _, w := range r.c.warehouses {
		cp := *w
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *entity.Warehouse) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// catalogFile formato del archivo CATALOG_FILE.
type catalogFile struct {
	Products []struct {
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
		ShelfLifeDays int                 `json:"shelf_life_days"`
		WarrantyDays  int                 `json:"warranty_days"`
		Variants      []struct {
			ID     string `json:"id"`
			SKU    string `json:"sku"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"variants"`
	} `json:"products"`
	Warehouses []struct {
		ID        string `json:"id"`
		Code      string `json:"code"`
		Name      string `json:"name"`
		Status    string `json:"status"`
		Locations []struct {
			ID     string `json:"id"`
			Code   string `json:"code"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"locations"`
	} `json:"warehouses"`
}

// LoadCatalogFile carga el catálogo desde un archivo JSON.
func LoadCatalogFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	now := time.Now().UTC()
	c := NewCatalog()
	for _, p := range f.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("parse catalog %s: producto sin id", path)
		}
		c.PutProduct(entity.Product{
			ID:            p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			Status:        entity.LifecycleStatus(p.Status),
			IsSerialized:  p.IsSerialized,
			IsLotTracked:  p.IsLotTracked,
			HasExpiry:     p.HasExpiry,
			ReorderPoint:  p.ReorderPoint,
			MinStockLevel: p.MinStockLevel,
			MaxStockLevel: p.MaxStockLevel,
			ShelfLifeDays: p.ShelfLifeDays,
			WarrantyDays:  p.WarrantyDays,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		for _, v := range p.Variants {
			c.PutVariant(entity.ProductVariant{ID: v.ID, ProductID: p.ID, SKU: v.SKU, Name: v.Name, Status: entity.LifecycleStatus(v.Status)})
		}
	}
	for _, w := range f.Warehouses {
		if w.ID == "" {
			return nil, fmt.Errorf("parse catalog %s: bodega sin id", path)
		}
		c.PutWarehouse(entity.Warehouse{ID: w.ID, Code: w.Code, Name: w.Name, Status: entity.LifecycleStatus(w.Status), CreatedAt: now, UpdatedAt: now})
		for _, l := range w.Locations {
			c.PutLocation(entity.Location{ID: l.ID, WarehouseID: w.ID, Code: l.Code, Name: l.Name, Status: entity.LifecycleStatus(l.Status)})
		}
	}
	return c, nil
}
