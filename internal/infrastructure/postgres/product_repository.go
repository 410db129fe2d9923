package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo lectura del catálogo de productos sobre PostgreSQL (usable con pool o tx).
// El catálogo lo mantiene otro sistema; el ledger solo lo consulta.
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de lectura de productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

const productColumns = `id, sku, name, status, is_serialized, is_lot_tracked, has_expiry, reorder_point,
		min_stock_level, max_stock_level, shelf_life_days, warranty_days, created_at, updated_at`

func scanProduct(row pgx.Row) (*entity.Product, error) {
	var (
		p      entity.Product
		status string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &status, &p.IsSerialized, &p.IsLotTracked, &p.HasExpiry, &p.ReorderPoint,
		&p.MinStockLevel, &p.MaxStockLevel, &p.ShelfLifeDays, &p.WarrantyDays, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = entity.LifecycleStatus(status)
	return &p, nil
}

// GetByID obtiene un producto por ID.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetVariant obtiene una variante del producto.
func (r *ProductRepo) GetVariant(ctx context.Context, productID, variantID string) (*entity.ProductVariant, error) {
	query := `SELECT id, product_id, sku, name, status FROM product_variants WHERE product_id = $1 AND id = $2`
	var (
		v      entity.ProductVariant
		status string
	)
	err := r.q.QueryRow(ctx, query, productID, variantID).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	v.Status = entity.LifecycleStatus(status)
	return &v, nil
}

// List lista todos los productos ordenados por ID.
func (r *ProductRepo) List(ctx context.Context) ([]*entity.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []*entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
