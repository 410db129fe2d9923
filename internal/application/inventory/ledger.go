package inventory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// LedgerService consultas sobre posiciones y el ledger de movimientos (sin efectos).
type LedgerService struct {
	positionRepo repository.PositionRepository
	movementRepo repository.MovementRepository
	cache        PositionCache
	log          *logger.Logger
}

// NewLedgerService construye el servicio de consulta. cache puede ser nil.
func NewLedgerService(
	positionRepo repository.PositionRepository,
	movementRepo repository.MovementRepository,
	cache PositionCache,
	log *logger.Logger,
) *LedgerService {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerService{positionRepo: positionRepo, movementRepo: movementRepo, cache: cache, log: log}
}

// GetPosition devuelve la posición; si nunca tuvo movimientos, una posición en cero.
func (s *LedgerService) GetPosition(ctx context.Context, key entity.PositionKey) (*entity.Position, error) {
	if key.ProductID == "" || key.WarehouseID == "" || key.LocationID == "" {
		return nil, fmt.Errorf("%w: producto, bodega y ubicación son obligatorios", domain.ErrValidation)
	}
	cached, gen, ok := s.cache.Get(ctx, key)
	if ok {
		return cached, nil
	}
	pos, err := s.positionRepo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	s.cache.Set(ctx, pos, gen)
	return pos, nil
}

// ListPositions posiciones que cumplen el filtro, ordenadas por clave.
func (s *LedgerService) ListPositions(ctx context.Context, filter repository.PositionFilter) ([]*entity.Position, error) {
	list, err := s.positionRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key.Less(list[j].Key) })
	return list, nil
}

// WarehouseUtilization agrega las posiciones de una bodega al momento de la consulta.
func (s *LedgerService) WarehouseUtilization(ctx context.Context, warehouseID string) (*entity.WarehouseUtilization, error) {
	if warehouseID == "" {
		return nil, fmt.Errorf("%w: bodega obligatoria", domain.ErrValidation)
	}
	list, err := s.positionRepo.List(ctx, repository.PositionFilter{WarehouseID: warehouseID})
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	u := &entity.WarehouseUtilization{
		WarehouseID: warehouseID,
		OnHand:      decimal.Zero,
		Allocated:   decimal.Zero,
		Available:   decimal.Zero,
		InTransit:   decimal.Zero,
	}
	products := make(map[string]struct{})
	var last time.Time
	for _, p := range list {
		u.Positions++
		if p.OnHand.IsPositive() {
			products[p.Key.ProductID] = struct{}{}
		}
		u.OnHand = u.OnHand.Add(p.OnHand)
		u.Allocated = u.Allocated.Add(p.Allocated)
		u.Available = u.Available.Add(p.Available)
		u.InTransit = u.InTransit.Add(p.InTransit)
		if p.LastMovementAt != nil && p.LastMovementAt.After(last) {
			last = *p.LastMovementAt
		}
	}
	u.Products = len(products)
	if !last.IsZero() {
		u.LastMovementAt = &last
	}
	return u, nil
}

// QueryMovements secuencia perezosa de movimientos en orden de número.
// Es finita y de un solo uso; el consumidor puede cortarla en cualquier momento.
func (s *LedgerService) QueryMovements(ctx context.Context, filter repository.MovementFilter) (iter.Seq2[*entity.Movement, error], error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, fmt.Errorf("%w: rango de fechas invertido", domain.ErrValidation)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: tipo de movimiento %q desconocido", domain.ErrValidation, filter.Type)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: límite negativo", domain.ErrValidation)
	}
	return s.movementRepo.Query(ctx, filter), nil
}

// GetMovement devuelve un movimiento por número.
func (s *LedgerService) GetMovement(ctx context.Context, number int64) (*entity.Movement, error) {
	m, err := s.movementRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: movimiento %d", domain.ErrNotFound, number)
	}
	return m, nil
}
