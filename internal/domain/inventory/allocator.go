package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// LotAllocation cantidad a consumir de un lote concreto.
type LotAllocation struct {
	Lot      *entity.Lot
	Quantity decimal.Decimal
}

// IsAllocatable indica si el lote es elegible para consumo: activo, aprobado, con saldo y no vencido.
func IsAllocatable(l *entity.Lot, today time.Time) bool {
	return l.Status == entity.LotActive &&
		l.QualityStatus == entity.QualityApproved &&
		l.CurrentQuantity.IsPositive() &&
		!l.IsExpiredAt(today)
}

// SortFEFO ordena por vencimiento ascendente (sin vencimiento al final), luego fecha de
// recepción ascendente y por último número de lote para que el orden sea determinista.
func SortFEFO(lots []*entity.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		return a.Key.LotNumber < b.Key.LotNumber
	})
}

// SelectLots elige los lotes a consumir para una salida de qty. No modifica los lotes.
// Devuelve además los lotes activos con saldo que se excluyeron por estar vencidos,
// incluso cuando la asignación falla con ErrInsufficientLotStock.
func SelectLots(lots []*entity.Lot, qty decimal.Decimal, today time.Time) ([]LotAllocation, []*entity.Lot, error) {
	var (
		eligible []*entity.Lot
		expired  []*entity.Lot
		total    = decimal.Zero
	)
	for _, l := range lots {
		if l.Status == entity.LotActive && l.CurrentQuantity.IsPositive() && l.IsExpiredAt(today) {
			expired = append(expired, l)
			continue
		}
		if IsAllocatable(l, today) {
			eligible = append(eligible, l)
			total = total.Add(l.CurrentQuantity)
		}
	}
	if total.LessThan(qty) {
		return nil, expired, fmt.Errorf("%w: solicitado %s, elegible %s", domain.ErrInsufficientLotStock, qty, total)
	}

	SortFEFO(eligible)
	remaining := qty
	out := make([]LotAllocation, 0, len(eligible))
	for _, l := range eligible {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(l.CurrentQuantity, remaining)
		out = append(out, LotAllocation{Lot: l, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return out, expired, nil
}
