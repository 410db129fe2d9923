package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// AdjustmentDirection signo de un ajuste.
type AdjustmentDirection string

const (
	AdjustIncrease AdjustmentDirection = "increase"
	AdjustDecrease AdjustmentDirection = "decrease"
)

// MovementInputDTO entrada para registrar un movimiento de inventario.
// WarehouseID/LocationID es la posición origen en salidas y traslados, y la destino en entradas.
// Para TRANSFER además ToWarehouseID/ToLocationID. Para cycle_count Quantity es lo contado (≥ 0).
type MovementInputDTO struct {
	Type          entity.MovementType
	ProductID     string
	VariantID     string
	WarehouseID   string
	LocationID    string
	ToWarehouseID string
	ToLocationID  string
	Quantity      decimal.Decimal
	Direction     AdjustmentDirection
	LotNumber     string
	ExpiryDate    *time.Time
	QualityStatus entity.QualityStatus
	SerialNumbers []string
	UnitCost      *decimal.Decimal
	FromAllocated bool
	Reference     entity.Reference
	Actor         string
	Notes         string
}

func (in MovementInputDTO) key() entity.PositionKey {
	return entity.PositionKey{ProductID: in.ProductID, VariantID: in.VariantID, WarehouseID: in.WarehouseID, LocationID: in.LocationID}
}

func (in MovementInputDTO) toKey() entity.PositionKey {
	return entity.PositionKey{ProductID: in.ProductID, VariantID: in.VariantID, WarehouseID: in.ToWarehouseID, LocationID: in.ToLocationID}
}

// isInbound indica si el movimiento ingresa stock a la posición principal.
func (in MovementInputDTO) isInbound() bool {
	switch in.Type {
	case entity.MovementReceipt, entity.MovementReturn:
		return true
	case entity.MovementAdjustment:
		return in.Direction == AdjustIncrease
	}
	return false
}

func (in MovementInputDTO) lockKeys() []string {
	keys := []string{in.key().LockKey()}
	if in.Type == entity.MovementTransfer {
		keys = append(keys, in.toKey().LockKey())
	}
	for _, sn := range in.SerialNumbers {
		keys = append(keys, entity.SerialLockKey(in.ProductID, sn))
	}
	return keys
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// validateInput validaciones de forma, independientes del catálogo.
func validateInput(in MovementInputDTO) error {
	if !in.Type.Valid() {
		return invalid("tipo de movimiento %q desconocido", in.Type)
	}
	if in.ProductID == "" || in.WarehouseID == "" || in.LocationID == "" {
		return invalid("producto, bodega y ubicación son obligatorios")
	}
	if in.Type == entity.MovementCycleCount {
		if in.Quantity.IsNegative() {
			return invalid("la cantidad contada no puede ser negativa")
		}
	} else if !in.Quantity.IsPositive() {
		return invalid("la cantidad debe ser mayor que cero")
	}
	if in.Type == entity.MovementTransfer {
		if in.ToWarehouseID == "" || in.ToLocationID == "" {
			return invalid("el traslado requiere bodega y ubicación destino")
		}
		if in.key() == in.toKey() {
			return invalid("origen y destino del traslado son la misma posición")
		}
	}
	if in.Type == entity.MovementAdjustment && in.Direction != AdjustIncrease && in.Direction != AdjustDecrease {
		return invalid("el ajuste requiere dirección increase|decrease")
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return invalid("el costo unitario no puede ser negativo")
	}
	switch in.QualityStatus {
	case "", entity.QualityApproved, entity.QualityPending, entity.QualityQuarantine, entity.QualityRejected:
	default:
		return invalid("estado de calidad %q desconocido", in.QualityStatus)
	}
	seen := make(map[string]struct{}, len(in.SerialNumbers))
	for _, sn := range in.SerialNumbers {
		if sn == "" {
			return invalid("número de serie vacío")
		}
		if _, dup := seen[sn]; dup {
			return invalid("número de serie %s repetido en la solicitud", sn)
		}
		seen[sn] = struct{}{}
	}
	return nil
}

// validateTracking reglas que dependen de los flags de trazabilidad del producto.
func validateTracking(in MovementInputDTO, p *entity.Product) error {
	if p.IsSerialized {
		if in.Type == entity.MovementCycleCount {
			return invalid("los productos serializados no admiten conteo cíclico; use recepciones o bajas por serial")
		}
		if !in.Quantity.Equal(in.Quantity.Truncate(0)) {
			return invalid("la cantidad de un producto serializado debe ser entera")
		}
		if int64(len(in.SerialNumbers)) != in.Quantity.IntPart() {
			return invalid("se esperaban %s números de serie, llegaron %d", in.Quantity, len(in.SerialNumbers))
		}
	} else if len(in.SerialNumbers) > 0 {
		return invalid("el producto %s no es serializado", p.ID)
	}

	if p.IsLotTracked {
		if (in.isInbound() || in.Type == entity.MovementCycleCount) && in.LotNumber == "" {
			return invalid("el producto %s requiere número de lote", p.ID)
		}
	} else if in.LotNumber != "" {
		return invalid("el producto %s no maneja lotes", p.ID)
	}
	return nil
}

// catalogRefs entidades de catálogo validadas para un movimiento.
type catalogRefs struct {
	product *entity.Product
}

// resolveReferences verifica que producto, variante, bodegas y ubicaciones existan y estén activos.
func (uc *RegisterMovementUseCase) resolveReferences(ctx context.Context, productID, variantID string, places ...[2]string) (*catalogRefs, error) {
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive() {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrReferenceNotFound, productID)
	}
	if variantID != "" {
		variant, err := uc.productRepo.GetVariant(ctx, productID, variantID)
		if err != nil {
			return nil, fmt.Errorf("get variant: %w", err)
		}
		if !variant.IsActive() {
			return nil, fmt.Errorf("%w: variante %s", domain.ErrReferenceNotFound, variantID)
		}
	}
	for _, pl := range places {
		wh, err := uc.warehouseRepo.GetByID(ctx, pl[0])
		if err != nil {
			return nil, fmt.Errorf("get warehouse: %w", err)
		}
		if !wh.IsActive() {
			return nil, fmt.Errorf("%w: bodega %s", domain.ErrReferenceNotFound, pl[0])
		}
		loc, err := uc.warehouseRepo.GetLocation(ctx, pl[0], pl[1])
		if err != nil {
			return nil, fmt.Errorf("get location: %w", err)
		}
		if !loc.IsActive() {
			return nil, fmt.Errorf("%w: ubicación %s", domain.ErrReferenceNotFound, pl[1])
		}
	}
	return &catalogRefs{product: product}, nil
}
