package inventory

import (
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// serialTransitions máquina de estados de unidades serializadas.
var serialTransitions = map[entity.SerialStatus][]entity.SerialStatus{
	entity.SerialInStock:   {entity.SerialAllocated, entity.SerialReturned, entity.SerialScrapped},
	entity.SerialAllocated: {entity.SerialShipped, entity.SerialSold, entity.SerialReturned},
	entity.SerialReturned:  {entity.SerialInStock},
	entity.SerialShipped:   {entity.SerialWarranty},
	entity.SerialSold:      {entity.SerialWarranty},
}

// CanTransition indica si la transición from -> to está permitida.
func CanTransition(from, to entity.SerialStatus) bool {
	for _, s := range serialTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsSerialActive estados en los que la unidad ocupa stock. El resto son terminales.
func IsSerialActive(s entity.SerialStatus) bool {
	switch s {
	case entity.SerialInStock, entity.SerialAllocated, entity.SerialReturned:
		return true
	}
	return false
}

// IsSerialMovable la unidad puede cambiar de ubicación o salir.
func IsSerialMovable(s entity.SerialStatus) bool {
	return s == entity.SerialInStock || s == entity.SerialAllocated
}

// SerialPath secuencia de estados intermedios para llevar la unidad de from a to,
// siguiendo la máquina de estados (por ejemplo in_stock -> allocated -> shipped).
func SerialPath(from, to entity.SerialStatus) ([]entity.SerialStatus, error) {
	if CanTransition(from, to) {
		return []entity.SerialStatus{to}, nil
	}
	for _, mid := range serialTransitions[from] {
		if CanTransition(mid, to) {
			return []entity.SerialStatus{mid, to}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidSerialState, from, to)
}
