package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// ReplenishmentUseCase genera la lista de reposición de una bodega a partir de las posiciones
// y los umbrales del catálogo.
type ReplenishmentUseCase struct {
	productRepo  repository.ProductRepository
	positionRepo repository.PositionRepository
}

// NewReplenishmentUseCase construye el caso de uso de reposición.
func NewReplenishmentUseCase(productRepo repository.ProductRepository, positionRepo repository.PositionRepository) *ReplenishmentUseCase {
	return &ReplenishmentUseCase{productRepo: productRepo, positionRepo: positionRepo}
}

// GenerateReplenishmentList devuelve los productos en o bajo su punto de reorden con la cantidad
// sugerida de pedido. El stock ideal es MaxStockLevel si está definido, si no ReorderPoint * 1.5.
func (uc *ReplenishmentUseCase) GenerateReplenishmentList(ctx context.Context, warehouseID string) ([]dto.ReplenishmentSuggestionDTO, error) {
	if warehouseID == "" {
		return nil, fmt.Errorf("%w: bodega obligatoria", domain.ErrValidation)
	}
	products, err := uc.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	positions, err := uc.positionRepo.List(ctx, repository.PositionFilter{WarehouseID: warehouseID})
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	// on_hand y valor por producto (todas las variantes y ubicaciones)
	type agg struct{ onHand, value decimal.Decimal }
	byProduct := make(map[string]*agg)
	for _, p := range positions {
		a, ok := byProduct[p.Key.ProductID]
		if !ok {
			a = &agg{onHand: decimal.Zero, value: decimal.Zero}
			byProduct[p.Key.ProductID] = a
		}
		a.onHand = a.onHand.Add(p.OnHand)
		a.value = a.value.Add(p.OnHand.Mul(p.AverageCost))
	}

	factor := decimal.NewFromFloat(1.5)
	suggestions := make([]dto.ReplenishmentSuggestionDTO, 0)
	for _, prod := range products {
		if !prod.IsActive() || !prod.ReorderPoint.Valid {
			continue
		}
		a := byProduct[prod.ID]
		if a == nil {
			a = &agg{onHand: decimal.Zero, value: decimal.Zero}
		}
		if a.onHand.GreaterThan(prod.ReorderPoint.Decimal) {
			continue
		}
		ideal := prod.ReorderPoint.Decimal.Mul(factor)
		if prod.MaxStockLevel.Valid {
			ideal = prod.MaxStockLevel.Decimal
		}
		suggested := ideal.Sub(a.onHand)
		if suggested.IsNegative() {
			suggested = decimal.Zero
		}
		unitCost := decimal.Zero
		if a.onHand.IsPositive() {
			unitCost = a.value.Div(a.onHand).Round(4)
		}
		suggestions = append(suggestions, dto.ReplenishmentSuggestionDTO{
			ProductID:          prod.ID,
			SKU:                prod.SKU,
			ProductName:        prod.Name,
			WarehouseID:        warehouseID,
			CurrentStock:       a.onHand,
			ReorderPoint:       prod.ReorderPoint.Decimal,
			IdealStock:         ideal,
			SuggestedOrderQty:  suggested,
			UnitCost:           unitCost,
			EstimatedOrderCost: suggested.Mul(unitCost),
		})
	}

	// Primero el mayor déficit relativo al punto de reorden; desempate por SKU.
	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		ra, rb := deficitRatio(a), deficitRatio(b)
		if !ra.Equal(rb) {
			return ra.GreaterThan(rb)
		}
		return a.SKU < b.SKU
	})
	for i := range suggestions {
		suggestions[i].Priority = i + 1
	}
	return suggestions, nil
}

func deficitRatio(s dto.ReplenishmentSuggestionDTO) decimal.Decimal {
	if !s.ReorderPoint.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return s.ReorderPoint.Sub(s.CurrentStock).Div(s.ReorderPoint)
}
