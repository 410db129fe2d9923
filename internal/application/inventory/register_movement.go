package inventory

import (
	"strings"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementInputFromRequest convierte el body HTTP en la entrada del caso de uso.
// Los tipos se normalizan a minúsculas; la referencia se decodifica según reference_kind.
func MovementInputFromRequest(req dto.RegisterMovementRequest) (MovementInputDTO, error) {
	ref, err := entity.DecodeReference(entity.ReferenceKind(strings.ToLower(req.ReferenceKind)), req.Reference)
	if err != nil {
		return MovementInputDTO{}, invalid("%v", err)
	}
	return MovementInputDTO{
		Type:          entity.MovementType(strings.ToLower(req.Type)),
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		WarehouseID:   req.WarehouseID,
		LocationID:    req.LocationID,
		ToWarehouseID: req.ToWarehouseID,
		ToLocationID:  req.ToLocationID,
		Quantity:      req.Quantity,
		Direction:     AdjustmentDirection(strings.ToLower(req.Direction)),
		LotNumber:     req.LotNumber,
		ExpiryDate:    req.ExpiryDate,
		QualityStatus: entity.QualityStatus(strings.ToLower(req.QualityStatus)),
		SerialNumbers: req.SerialNumbers,
		UnitCost:      req.UnitCost,
		FromAllocated: req.FromAllocated,
		Reference:     ref,
		Actor:         req.Actor,
		Notes:         req.Notes,
	}, nil
}

// AllocationInputFromRequest convierte el body de reserva/liberación.
func AllocationInputFromRequest(req dto.AllocationRequest) AllocationInputDTO {
	return AllocationInputDTO{
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		WarehouseID:   req.WarehouseID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		SerialNumbers: req.SerialNumbers,
		Actor:         req.Actor,
	}
}
