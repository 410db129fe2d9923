package inventory

import (
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Delta cambio a aplicar sobre una posición. Available nunca se indica: se deriva.
// SetOnHand fija el valor absoluto (conteos cíclicos) y solo se admite en ajustes.
type Delta struct {
	OnHand     decimal.Decimal
	Allocated  decimal.Decimal
	InTransit  decimal.Decimal
	SetOnHand  *decimal.Decimal
	Adjustment bool
	UnitCost   *decimal.Decimal // costo de la entrada, para el promedio ponderado
}

// Inverse delta opuesto (para reversos). No soporta SetOnHand.
func (d Delta) Inverse() Delta {
	return Delta{
		OnHand:     d.OnHand.Neg(),
		Allocated:  d.Allocated.Neg(),
		InTransit:  d.InTransit.Neg(),
		Adjustment: d.Adjustment,
	}
}

// ApplyDelta valida y aplica el delta sobre pos. Si la validación falla pos queda intacta.
// Para movimientos que no son ajustes devuelve ErrInsufficientStock; para ajustes ErrValidation.
func ApplyDelta(pos *entity.Position, d Delta, now time.Time) error {
	if d.SetOnHand != nil && !d.Adjustment {
		return fmt.Errorf("%w: solo los ajustes pueden fijar la cantidad", domain.ErrValidation)
	}
	onHand := pos.OnHand.Add(d.OnHand)
	if d.SetOnHand != nil {
		onHand = *d.SetOnHand
	}
	allocated := pos.Allocated.Add(d.Allocated)
	inTransit := pos.InTransit.Add(d.InTransit)
	available := onHand.Sub(allocated)

	if onHand.IsNegative() || allocated.IsNegative() || inTransit.IsNegative() || available.IsNegative() {
		if d.Adjustment {
			return fmt.Errorf("%w: el ajuste dejaría cantidades negativas en %s (on_hand=%s allocated=%s)",
				domain.ErrValidation, pos.Key, onHand, allocated)
		}
		return fmt.Errorf("%w: %s disponible=%s", domain.ErrInsufficientStock, pos.Key, pos.Available)
	}

	change := onHand.Sub(pos.OnHand)
	if change.IsPositive() && d.UnitCost != nil {
		pos.AverageCost = WeightedAverageCost(pos.OnHand, pos.AverageCost, change, *d.UnitCost)
	}
	switch {
	case change.IsPositive():
		pos.LastReceivedAt = &now
	case change.IsNegative():
		pos.LastIssuedAt = &now
	}
	pos.OnHand = onHand
	pos.Allocated = allocated
	pos.InTransit = inTransit
	pos.Available = available
	pos.LastMovementAt = &now
	pos.UpdatedAt = now
	return nil
}

// CheckInvariant verifica OnHand = Allocated + Available y no negatividad.
func CheckInvariant(pos *entity.Position) error {
	if pos.OnHand.IsNegative() || pos.Allocated.IsNegative() || pos.Available.IsNegative() || pos.InTransit.IsNegative() {
		return fmt.Errorf("posición %s con cantidades negativas", pos.Key)
	}
	if !pos.OnHand.Equal(pos.Allocated.Add(pos.Available)) {
		return fmt.Errorf("posición %s: on_hand %s != allocated %s + available %s",
			pos.Key, pos.OnHand, pos.Allocated, pos.Available)
	}
	return nil
}
