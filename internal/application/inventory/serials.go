package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// SerialRegistry consultas del registro de seriales y paso a garantía.
type SerialRegistry struct {
	txRunner   TxRunner
	serialRepo repository.SerialRepository
	log        *logger.Logger
	now        func() time.Time
}

// NewSerialRegistry construye el registro.
func NewSerialRegistry(txRunner TxRunner, serialRepo repository.SerialRepository, log *logger.Logger) *SerialRegistry {
	if log == nil {
		log = logger.Nop()
	}
	return &SerialRegistry{txRunner: txRunner, serialRepo: serialRepo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// GetSerial unidad con su historial completo.
func (r *SerialRegistry) GetSerial(ctx context.Context, productID, serialNumber string) (*entity.SerialUnit, error) {
	u, err := r.serialRepo.Get(ctx, productID, serialNumber)
	if err != nil {
		return nil, fmt.Errorf("get serial: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: serial %s", domain.ErrNotFound, serialNumber)
	}
	return u, nil
}

// ListSerials unidades según filtro, ordenadas por número de serie.
func (r *SerialRegistry) ListSerials(ctx context.Context, filter repository.SerialFilter) ([]*entity.SerialUnit, error) {
	list, err := r.serialRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list serials: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SerialNumber < list[j].SerialNumber })
	return list, nil
}

// MarkWarranty pasa una unidad vendida o enviada a garantía. No mueve stock.
func (r *SerialRegistry) MarkWarranty(ctx context.Context, productID, serialNumber string) (*entity.SerialUnit, error) {
	var out *entity.SerialUnit
	err := r.txRunner.Run(ctx, []string{entity.SerialLockKey(productID, serialNumber)}, func(_ repository.MovementRepository, _ repository.PositionRepository, _ repository.LotRepository, serialRepo repository.SerialRepository) error {
		u, err := serialRepo.Get(ctx, productID, serialNumber)
		if err != nil {
			return fmt.Errorf("get serial: %w", err)
		}
		if u == nil {
			return fmt.Errorf("%w: serial %s", domain.ErrNotFound, serialNumber)
		}
		if !inventory.CanTransition(u.Status, entity.SerialWarranty) {
			return fmt.Errorf("%w: %s está %s", domain.ErrInvalidSerialState, serialNumber, u.Status)
		}
		now := r.now()
		u.History = append(u.History, entity.SerialEvent{
			From: u.Status, To: entity.SerialWarranty, WarehouseID: u.WarehouseID, LocationID: u.LocationID, At: now,
		})
		u.Status = entity.SerialWarranty
		u.UpdatedAt = now
		if err := serialRepo.Save(ctx, u); err != nil {
			return fmt.Errorf("save serial: %w", err)
		}
		out = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("product_id", productID).Str("serial", serialNumber).Msg("unidad en garantía")
	return out, nil
}
