package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ProductRepository puerto de solo lectura hacia el catálogo externo de productos (DIP).
// GetByID y GetVariant devuelven (nil, nil) cuando no existe.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (*entity.ProductVariant, error)
	List(ctx context.Context) ([]*entity.Product, error)
}
