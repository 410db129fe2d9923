package usecase

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// ProductUseCase consulta del catálogo de productos. El catálogo es externo al ledger:
// aquí solo se lee para validar referencias y mostrar umbrales.
type ProductUseCase struct {
	repo repository.ProductRepository
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(repo repository.ProductRepository) *ProductUseCase {
	return &ProductUseCase{repo: repo}
}

// GetByID obtiene un producto por ID con sus banderas de seguimiento.
func (uc *ProductUseCase) GetByID(ctx context.Context, id string) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, id)
	}
	return toProductResponse(product), nil
}

// List lista productos con paginación. includeArchived=false oculta los archivados.
func (uc *ProductUseCase) List(ctx context.Context, page dto.PageRequest, includeArchived bool) (*dto.ProductListResponse, error) {
	page.DefaultPage()
	list, err := uc.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if !includeArchived {
		list = activeOnly(list, (*entity.Product).IsActive)
	}
	total := len(list)
	items := make([]dto.ProductResponse, 0, page.Limit)
	for _, p := range paginate(list, page) {
		items = append(items, *toProductResponse(p))
	}
	return &dto.ProductListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

func toProductResponse(p *entity.Product) *dto.ProductResponse {
	if p == nil {
		return nil
	}
	status := p.Status
	if status == "" {
		status = entity.LifecycleActive
	}
	return &dto.ProductResponse{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Status:        string(status),
		IsSerialized:  p.IsSerialized,
		IsLotTracked:  p.IsLotTracked,
		HasExpiry:     p.HasExpiry,
		ReorderPoint:  p.ReorderPoint,
		MinStockLevel: p.MinStockLevel,
		MaxStockLevel: p.MaxStockLevel,
		ShelfLifeDays: p.ShelfLifeDays,
		WarrantyDays:  p.WarrantyDays,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func activeOnly[T any](list []*T, active func(*T) bool) []*T {
	out := list[:0:0]
	for _, v := range list {
		if active(v) {
			out = append(out, v)
		}
	}
	return out
}

func paginate[T any](list []T, page dto.PageRequest) []T {
	if page.Offset >= len(list) {
		return nil
	}
	end := min(page.Offset+page.Limit, len(list))
	return list[page.Offset:end]
}
