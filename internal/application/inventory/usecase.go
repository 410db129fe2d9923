package inventory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// RegisterMovementUseCase registra movimientos de inventario de forma transaccional.
// Cada movimiento bloquea sus posiciones y seriales (en orden global), aplica los cambios
// sobre posiciones, lotes y seriales y agrega el registro al ledger; si algo falla no queda nada aplicado.
type RegisterMovementUseCase struct {
	txRunner      TxRunner
	productRepo   repository.ProductRepository
	warehouseRepo repository.WarehouseRepository
	cache         PositionCache
	notifier      CommitNotifier
	retry         RetryPolicy
	log           *logger.Logger
	now           func() time.Time
}

// Option configura dependencias opcionales del caso de uso.
type Option func(*RegisterMovementUseCase)

// WithPositionCache caché de posiciones a invalidar tras cada commit.
func WithPositionCache(c PositionCache) Option {
	return func(uc *RegisterMovementUseCase) { uc.cache = c }
}

// WithNotifier receptor de eventos de commit (motor de alertas).
func WithNotifier(n CommitNotifier) Option {
	return func(uc *RegisterMovementUseCase) { uc.notifier = n }
}

// WithRetryPolicy política de reintentos ante conflictos de concurrencia.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(uc *RegisterMovementUseCase) { uc.retry = p }
}

// WithLogger logger estructurado.
func WithLogger(l *logger.Logger) Option {
	return func(uc *RegisterMovementUseCase) { uc.log = l }
}

// WithClock reloj inyectable (tests).
func WithClock(now func() time.Time) Option {
	return func(uc *RegisterMovementUseCase) { uc.now = now }
}

// NewRegisterMovementUseCase construye el caso de uso.
func NewRegisterMovementUseCase(
	txRunner TxRunner,
	productRepo repository.ProductRepository,
	warehouseRepo repository.WarehouseRepository,
	opts ...Option,
) *RegisterMovementUseCase {
	uc := &RegisterMovementUseCase{
		txRunner:      txRunner,
		productRepo:   productRepo,
		warehouseRepo: warehouseRepo,
		cache:         noopCache{},
		notifier:      noopNotifier{},
		retry:         DefaultRetryPolicy(),
		log:           logger.Nop(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// MovementResult movimiento registrado y estado final de las posiciones tocadas.
type MovementResult struct {
	Movement  *entity.Movement
	Positions []*entity.Position
}

// RegisterMovement valida la entrada contra el catálogo y aplica el movimiento de forma atómica.
// Reintenta ante domain.ErrConcurrencyConflict según la política configurada.
func (uc *RegisterMovementUseCase) RegisterMovement(ctx context.Context, in MovementInputDTO) (*MovementResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	places := [][2]string{{in.WarehouseID, in.LocationID}}
	if in.Type == entity.MovementTransfer {
		places = append(places, [2]string{in.ToWarehouseID, in.ToLocationID})
	}
	refs, err := uc.resolveReferences(ctx, in.ProductID, in.VariantID, places...)
	if err != nil {
		return nil, err
	}
	if err := validateTracking(in, refs.product); err != nil {
		return nil, err
	}
	if in.Reference == nil {
		in.Reference = defaultReference(in)
	}

	var (
		result  *MovementResult
		expired []*entity.Lot
	)
	err = retryOnConflict(ctx, uc.retry, uc.onRetry(string(in.Type)), func() error {
		result, expired = nil, nil
		return uc.txRunner.Run(ctx, in.lockKeys(), func(
			movRepo repository.MovementRepository,
			positionRepo repository.PositionRepository,
			lotRepo repository.LotRepository,
			serialRepo repository.SerialRepository,
		) error {
			mt := newMovementTx(ctx, positionRepo, lotRepo, serialRepo, refs.product, uc.now())
			err := uc.dispatch(mt, in)
			expired = mt.expired
			if err != nil {
				return err
			}
			m := newMovement(mt, in)
			if err := movRepo.Append(ctx, m); err != nil {
				return fmt.Errorf("append movement: %w", err)
			}
			if err := mt.flushSerials(m.MovementNumber); err != nil {
				return err
			}
			result = &MovementResult{Movement: m.Clone(), Positions: mt.touchedPositions()}
			return nil
		})
	})
	if err != nil {
		uc.publishExpired(expired)
		uc.log.Debug().Err(err).Str("type", string(in.Type)).Str("product_id", in.ProductID).Msg("movimiento rechazado")
		return nil, err
	}
	uc.publish(ctx, result, expired)
	return result, nil
}

// dispatch aplica la lógica según el tipo de movimiento.
func (uc *RegisterMovementUseCase) dispatch(mt *movementTx, in MovementInputDTO) error {
	switch in.Type {
	case entity.MovementReceipt:
		return uc.doInbound(mt, in, false, false)
	case entity.MovementReturn:
		return uc.doInbound(mt, in, true, false)
	case entity.MovementIssue:
		target := entity.SerialShipped
		if _, ok := in.Reference.(entity.SalesRef); ok {
			target = entity.SerialSold
		}
		return uc.doOutbound(mt, in, target, false)
	case entity.MovementScrap:
		return uc.doOutbound(mt, in, entity.SerialScrapped, false)
	case entity.MovementAdjustment:
		if in.Direction == AdjustIncrease {
			return uc.doInbound(mt, in, false, true)
		}
		return uc.doOutbound(mt, in, entity.SerialScrapped, true)
	case entity.MovementTransfer:
		return uc.doTransfer(mt, in)
	case entity.MovementCycleCount:
		return uc.doCycleCount(mt, in)
	}
	return invalid("tipo de movimiento %q desconocido", in.Type)
}

// doInbound: suma on_hand con costo promedio, ingresa el lote y registra o reactiva los seriales.
func (uc *RegisterMovementUseCase) doInbound(mt *movementTx, in MovementInputDTO, isReturn, adjustment bool) error {
	key := in.key()
	if _, err := mt.apply(entity.LineCredit, key, inventory.Delta{
		OnHand: in.Quantity, UnitCost: in.UnitCost, Adjustment: adjustment,
	}); err != nil {
		return err
	}
	if mt.product.IsLotTracked {
		if err := mt.receiveLot(lotReceipt{
			key:        key,
			lotNumber:  in.LotNumber,
			quantity:   in.Quantity,
			expiry:     in.ExpiryDate,
			quality:    in.QualityStatus,
			addInitial: !isReturn,
		}); err != nil {
			return err
		}
	}
	if mt.product.IsSerialized {
		return mt.receiveSerials(in.SerialNumbers, key, isReturn)
	}
	return nil
}

// doOutbound: retira on_hand (y la reserva correspondiente), consume lotes FEFO y cierra los seriales.
func (uc *RegisterMovementUseCase) doOutbound(mt *movementTx, in MovementInputDTO, target entity.SerialStatus, adjustment bool) error {
	key := in.key()
	allocated := decimal.Zero
	var units []*entity.SerialUnit
	if mt.product.IsSerialized {
		var n int
		var err error
		units, n, err = mt.dispatchSerials(in.SerialNumbers, key)
		if err != nil {
			return err
		}
		allocated = decimal.NewFromInt(int64(n))
	} else if in.FromAllocated {
		allocated = in.Quantity
	}
	if _, err := mt.apply(entity.LineDebit, key, inventory.Delta{
		OnHand: in.Quantity.Neg(), Allocated: allocated.Neg(), Adjustment: adjustment,
	}); err != nil {
		return err
	}
	if mt.product.IsLotTracked {
		strict := in.Type == entity.MovementIssue
		if _, err := mt.consumeLots(key, in.Quantity, in.LotNumber, strict); err != nil {
			return err
		}
	}
	if units != nil {
		return mt.finishSerials(units, key, target)
	}
	return nil
}

// doTransfer: débito en origen y crédito en destino dentro de la misma transacción.
// Los lotes conservan número, vencimiento y calidad; la reserva viaja con las unidades.
func (uc *RegisterMovementUseCase) doTransfer(mt *movementTx, in MovementInputDTO) error {
	src, dst := in.key(), in.toKey()
	srcPos, err := mt.position(src)
	if err != nil {
		return err
	}
	cost := srcPos.AverageCost

	allocated := decimal.Zero
	var units []*entity.SerialUnit
	if mt.product.IsSerialized {
		var n int
		units, n, err = mt.dispatchSerials(in.SerialNumbers, src)
		if err != nil {
			return err
		}
		allocated = decimal.NewFromInt(int64(n))
	} else if in.FromAllocated {
		allocated = in.Quantity
	}

	if _, err := mt.apply(entity.LineDebit, src, inventory.Delta{OnHand: in.Quantity.Neg(), Allocated: allocated.Neg()}); err != nil {
		return err
	}
	if _, err := mt.apply(entity.LineCredit, dst, inventory.Delta{OnHand: in.Quantity, Allocated: allocated, UnitCost: &cost}); err != nil {
		return err
	}
	if mt.product.IsLotTracked {
		consumed, err := mt.consumeLots(src, in.Quantity, in.LotNumber, false)
		if err != nil {
			return err
		}
		for _, c := range consumed {
			if err := mt.receiveLot(lotReceipt{
				key: dst, lotNumber: c.lot.Key.LotNumber, quantity: c.quantity, template: c.lot,
			}); err != nil {
				return err
			}
		}
	}
	for _, u := range units {
		mt.step(u, nil, dst)
	}
	return nil
}

// doCycleCount fija la cantidad contada. En productos con lote el conteo es del lote indicado
// y la posición se ajusta por la diferencia.
func (uc *RegisterMovementUseCase) doCycleCount(mt *movementTx, in MovementInputDTO) error {
	key := in.key()
	counted := in.Quantity
	if !mt.product.IsLotTracked {
		pos, err := mt.position(key)
		if err != nil {
			return err
		}
		role := entity.LineCredit
		if counted.LessThan(pos.OnHand) {
			role = entity.LineDebit
		}
		_, err = mt.apply(role, key, inventory.Delta{SetOnHand: &counted, Adjustment: true})
		return err
	}

	lk := entity.LotKey{Position: key, LotNumber: in.LotNumber}
	l, err := mt.lots.Get(mt.ctx, lk)
	if err != nil {
		return fmt.Errorf("get lot: %w", err)
	}
	current := decimal.Zero
	if l != nil {
		if l.Status == entity.LotRecalled || l.Status == entity.LotExpired {
			return invalid("el lote %s está %s", in.LotNumber, l.Status)
		}
		current = l.CurrentQuantity
	} else if counted.IsZero() {
		return invalid("el lote %s no tiene registro en %s", in.LotNumber, key)
	}
	diff := counted.Sub(current)
	role := entity.LineCredit
	if diff.IsNegative() {
		role = entity.LineDebit
	}
	if _, err := mt.apply(role, key, inventory.Delta{OnHand: diff, Adjustment: true}); err != nil {
		return err
	}
	if l == nil {
		return mt.receiveLot(lotReceipt{
			key: key, lotNumber: in.LotNumber, quantity: counted, expiry: in.ExpiryDate, quality: in.QualityStatus, addInitial: true,
		})
	}
	if diff.IsZero() {
		return nil
	}
	l.CurrentQuantity = counted
	l.Status = entity.LotActive
	if counted.IsZero() {
		l.Status = entity.LotConsumed
	}
	l.UpdatedAt = mt.now
	if err := mt.lots.Save(mt.ctx, l); err != nil {
		return fmt.Errorf("save lot: %w", err)
	}
	mt.lotEntries = append(mt.lotEntries, entity.LotEntry{Lot: lk, Quantity: diff, ExpiryDate: l.ExpiryDate})
	return nil
}

func newMovement(mt *movementTx, in MovementInputDTO) *entity.Movement {
	m := &entity.Movement{
		ID:          uuid.New().String(),
		Type:        in.Type,
		ProductID:   in.ProductID,
		VariantID:   in.VariantID,
		WarehouseID: in.WarehouseID,
		LocationID:  in.LocationID,
		Quantity:    in.Quantity,
		Lines:       mt.lines,
		Lots:        mt.lotEntries,
		Serials:     mt.serialLog,
		Reference:   in.Reference,
		Actor:       in.Actor,
		Notes:       in.Notes,
		CreatedAt:   mt.now,
	}
	if in.Type == entity.MovementTransfer {
		m.ToWarehouseID, m.ToLocationID = in.ToWarehouseID, in.ToLocationID
	}
	if len(mt.lines) > 0 {
		m.QuantityBefore = mt.lines[0].QuantityBefore
		m.QuantityAfter = mt.lines[0].QuantityAfter
	}
	if in.UnitCost != nil {
		m.UnitCost = decimal.NewNullDecimal(*in.UnitCost)
	}
	return m
}

func defaultReference(in MovementInputDTO) entity.Reference {
	switch in.Type {
	case entity.MovementTransfer:
		return entity.TransferRef{TransferID: uuid.New().String()}
	case entity.MovementCycleCount:
		return entity.CountRef{SessionID: uuid.New().String(), CountedBy: in.Actor}
	}
	return nil
}

// ── Reversos ────────────────────────────────────────────────────────────────

// ReverseMovement registra el movimiento compensatorio de number. El original nunca se modifica.
// Un movimiento solo puede reversarse una vez; los reversos y los movimientos con seriales no se reversan.
func (uc *RegisterMovementUseCase) ReverseMovement(ctx context.Context, number int64, actor, notes string) (*MovementResult, error) {
	var orig *entity.Movement
	if err := uc.txRunner.Run(ctx, nil, func(movRepo repository.MovementRepository, _ repository.PositionRepository, _ repository.LotRepository, _ repository.SerialRepository) error {
		var err error
		orig, err = movRepo.GetByNumber(ctx, number)
		return err
	}); err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	if orig == nil {
		return nil, fmt.Errorf("%w: movimiento %d", domain.ErrNotFound, number)
	}
	if orig.ReversalOf != 0 {
		return nil, invalid("el movimiento %d ya es un reverso", number)
	}
	if len(orig.Serials) > 0 {
		return nil, invalid("los movimientos con seriales se corrigen con devoluciones o bajas")
	}

	keys := []string{"reversal:" + strconv.FormatInt(number, 10)}
	for _, l := range orig.Lines {
		keys = append(keys, l.Position.LockKey())
	}
	product := &entity.Product{ID: orig.ProductID}
	adjustment := orig.Type == entity.MovementAdjustment || orig.Type == entity.MovementCycleCount

	var result *MovementResult
	err := retryOnConflict(ctx, uc.retry, uc.onRetry("reversal"), func() error {
		result = nil
		return uc.txRunner.Run(ctx, keys, func(
			movRepo repository.MovementRepository,
			positionRepo repository.PositionRepository,
			lotRepo repository.LotRepository,
			serialRepo repository.SerialRepository,
		) error {
			prev, err := movRepo.FindReversal(ctx, number)
			if err != nil {
				return fmt.Errorf("find reversal: %w", err)
			}
			if prev != nil {
				return fmt.Errorf("%w: movimiento %d reversado por %d", domain.ErrAlreadyReversed, number, prev.MovementNumber)
			}
			mt := newMovementTx(ctx, positionRepo, lotRepo, serialRepo, product, uc.now())
			for _, line := range orig.Lines {
				role := entity.LineCredit
				if line.Role == entity.LineCredit {
					role = entity.LineDebit
				}
				if _, err := mt.apply(role, line.Position, inventory.Delta{
					OnHand: line.OnHandDelta.Neg(), Allocated: line.AllocatedDelta.Neg(), Adjustment: adjustment,
				}); err != nil {
					return err
				}
			}
			for _, e := range orig.Lots {
				if err := mt.reverseLotEntry(e); err != nil {
					return err
				}
			}
			m := orig.Clone()
			m.ID = uuid.New().String()
			m.MovementNumber = 0
			m.ReversalOf = number
			m.Lines, m.Lots, m.Serials = mt.lines, mt.lotEntries, nil
			m.QuantityBefore, m.QuantityAfter = mt.lines[0].QuantityBefore, mt.lines[0].QuantityAfter
			m.Actor, m.Notes, m.CreatedAt = actor, notes, mt.now
			if err := movRepo.Append(ctx, m); err != nil {
				return fmt.Errorf("append movement: %w", err)
			}
			result = &MovementResult{Movement: m.Clone(), Positions: mt.touchedPositions()}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, result, nil)
	return result, nil
}

// reverseLotEntry deshace el efecto de una entrada de lote.
func (mt *movementTx) reverseLotEntry(e entity.LotEntry) error {
	l, err := mt.lots.Get(mt.ctx, e.Lot)
	if err != nil {
		return fmt.Errorf("get lot: %w", err)
	}
	if l == nil {
		return fmt.Errorf("%w: lote %s", domain.ErrReferenceNotFound, e.Lot)
	}
	if l.Status == entity.LotRecalled || l.Status == entity.LotExpired {
		return invalid("el lote %s está %s", e.Lot.LotNumber, l.Status)
	}
	qty := l.CurrentQuantity.Sub(e.Quantity)
	if qty.IsNegative() {
		return fmt.Errorf("%w: lote %s tiene %s", domain.ErrInsufficientLotStock, e.Lot.LotNumber, l.CurrentQuantity)
	}
	l.CurrentQuantity = qty
	l.Status = entity.LotActive
	if qty.IsZero() {
		l.Status = entity.LotConsumed
	}
	l.UpdatedAt = mt.now
	if err := mt.lots.Save(mt.ctx, l); err != nil {
		return fmt.Errorf("save lot: %w", err)
	}
	mt.lotEntries = append(mt.lotEntries, entity.LotEntry{Lot: e.Lot, Quantity: e.Quantity.Neg(), ExpiryDate: l.ExpiryDate})
	return nil
}

// ── Retiro y vencimiento de lotes ───────────────────────────────────────────

// LotStatusInputDTO cambio de estado de un lote en todas sus ubicaciones.
type LotStatusInputDTO struct {
	ProductID string
	LotNumber string
	Status    entity.LotStatus // recalled | expired
	Actor     string
	Notes     string
}

// ChangeLotStatus marca el lote como retirado o vencido. El saldo de cada ubicación se da de baja
// con un movimiento de scrap por ubicación; si la posición queda con menos stock que reservas,
// la diferencia de allocated se libera en el mismo movimiento.
func (uc *RegisterMovementUseCase) ChangeLotStatus(ctx context.Context, in LotStatusInputDTO) ([]*MovementResult, error) {
	if in.Status != entity.LotRecalled && in.Status != entity.LotExpired {
		return nil, invalid("estado de lote %q no admitido (recalled|expired)", in.Status)
	}
	if in.ProductID == "" || in.LotNumber == "" {
		return nil, invalid("producto y lote son obligatorios")
	}
	product, err := uc.productRepo.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrReferenceNotFound, in.ProductID)
	}
	filter := repository.LotFilter{ProductID: in.ProductID, LotNumber: in.LotNumber}

	var placements []*entity.Lot
	if err := uc.txRunner.Run(ctx, nil, func(_ repository.MovementRepository, _ repository.PositionRepository, lotRepo repository.LotRepository, _ repository.SerialRepository) error {
		placements, err = lotRepo.List(ctx, filter)
		return err
	}); err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(placements) == 0 {
		return nil, fmt.Errorf("%w: lote %s", domain.ErrReferenceNotFound, in.LotNumber)
	}
	keys := make([]string, 0, len(placements))
	for _, l := range placements {
		keys = append(keys, l.Key.Position.LockKey())
	}

	var results []*MovementResult
	err = retryOnConflict(ctx, uc.retry, uc.onRetry("lot_status"), func() error {
		results = nil
		return uc.txRunner.Run(ctx, keys, func(
			movRepo repository.MovementRepository,
			positionRepo repository.PositionRepository,
			lotRepo repository.LotRepository,
			serialRepo repository.SerialRepository,
		) error {
			lots, err := lotRepo.List(ctx, filter)
			if err != nil {
				return fmt.Errorf("list lots: %w", err)
			}
			sort.Slice(lots, func(i, j int) bool { return lots[i].Key.String() < lots[j].Key.String() })
			for _, l := range lots {
				if l.Status != entity.LotActive && l.Status != entity.LotConsumed {
					continue
				}
				now := uc.now()
				remaining := l.CurrentQuantity
				l.Status, l.CurrentQuantity, l.UpdatedAt = in.Status, decimal.Zero, now
				if err := lotRepo.Save(ctx, l); err != nil {
					return fmt.Errorf("save lot: %w", err)
				}
				if !remaining.IsPositive() {
					continue
				}
				mt := newMovementTx(ctx, positionRepo, lotRepo, serialRepo, product, now)
				current, err := mt.position(l.Key.Position)
				if err != nil {
					return err
				}
				// las reservas que el resto de la posición no alcanza a cubrir se liberan con la baja
				release := decimal.Max(decimal.Zero, current.Allocated.Sub(current.OnHand.Sub(remaining)))
				if _, err := mt.apply(entity.LineDebit, l.Key.Position, inventory.Delta{OnHand: remaining.Neg(), Allocated: release.Neg()}); err != nil {
					return err
				}
				mt.lotEntries = append(mt.lotEntries, entity.LotEntry{Lot: l.Key, Quantity: remaining.Neg(), ExpiryDate: l.ExpiryDate})
				pos := l.Key.Position
				m := newMovement(mt, MovementInputDTO{
					Type:        entity.MovementScrap,
					ProductID:   pos.ProductID,
					VariantID:   pos.VariantID,
					WarehouseID: pos.WarehouseID,
					LocationID:  pos.LocationID,
					Quantity:    remaining,
					Actor:       in.Actor,
					Notes:       in.Notes,
				})
				if err := movRepo.Append(ctx, m); err != nil {
					return fmt.Errorf("append movement: %w", err)
				}
				results = append(results, &MovementResult{Movement: m.Clone(), Positions: mt.touchedPositions()})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		uc.publish(ctx, r, nil)
	}
	uc.log.Info().Str("product_id", in.ProductID).Str("lot", in.LotNumber).Str("status", string(in.Status)).
		Int("movements", len(results)).Msg("estado de lote actualizado")
	return results, nil
}

// ── Reservas ────────────────────────────────────────────────────────────────

// AllocationInputDTO reserva o liberación de stock en una posición.
type AllocationInputDTO struct {
	ProductID     string
	VariantID     string
	WarehouseID   string
	LocationID    string
	Quantity      decimal.Decimal
	SerialNumbers []string
	Actor         string
}

// AllocateStock reserva cantidad disponible (allocated += qty, available -= qty).
func (uc *RegisterMovementUseCase) AllocateStock(ctx context.Context, in AllocationInputDTO) (*entity.Position, error) {
	return uc.reserve(ctx, in, true)
}

// ReleaseStock libera una reserva previa.
func (uc *RegisterMovementUseCase) ReleaseStock(ctx context.Context, in AllocationInputDTO) (*entity.Position, error) {
	return uc.reserve(ctx, in, false)
}

func (uc *RegisterMovementUseCase) reserve(ctx context.Context, in AllocationInputDTO, allocate bool) (*entity.Position, error) {
	probe := MovementInputDTO{
		Type:          entity.MovementIssue,
		ProductID:     in.ProductID,
		VariantID:     in.VariantID,
		WarehouseID:   in.WarehouseID,
		LocationID:    in.LocationID,
		Quantity:      in.Quantity,
		SerialNumbers: in.SerialNumbers,
	}
	if err := validateInput(probe); err != nil {
		return nil, err
	}
	refs, err := uc.resolveReferences(ctx, in.ProductID, in.VariantID, [2]string{in.WarehouseID, in.LocationID})
	if err != nil {
		return nil, err
	}
	if err := validateTracking(probe, refs.product); err != nil {
		return nil, err
	}
	key := probe.key()
	delta := inventory.Delta{Allocated: in.Quantity}
	if !allocate {
		delta.Allocated = in.Quantity.Neg()
	}

	var pos *entity.Position
	err = retryOnConflict(ctx, uc.retry, uc.onRetry("allocation"), func() error {
		pos = nil
		return uc.txRunner.Run(ctx, probe.lockKeys(), func(
			_ repository.MovementRepository,
			positionRepo repository.PositionRepository,
			lotRepo repository.LotRepository,
			serialRepo repository.SerialRepository,
		) error {
			mt := newMovementTx(ctx, positionRepo, lotRepo, serialRepo, refs.product, uc.now())
			for _, sn := range in.SerialNumbers {
				u, err := mt.serial(sn)
				if err != nil {
					return err
				}
				if u == nil {
					return fmt.Errorf("%w: serial %s", domain.ErrReferenceNotFound, sn)
				}
				if u.Position() != key {
					return fmt.Errorf("%w: %s no está en %s", domain.ErrInvalidSerialState, sn, key)
				}
				path := []entity.SerialStatus{entity.SerialAllocated}
				want, cause := entity.SerialInStock, entity.SerialCauseAllocation
				if !allocate {
					// allocated -> in_stock solo existe vía returned; Cause distingue la liberación
					// de una devolución de cliente en el historial.
					path = []entity.SerialStatus{entity.SerialReturned, entity.SerialInStock}
					want, cause = entity.SerialAllocated, entity.SerialCauseRelease
				}
				if u.Status != want {
					return fmt.Errorf("%w: %s está %s", domain.ErrInvalidSerialState, sn, u.Status)
				}
				first := len(u.History)
				mt.step(u, path, key)
				for i := first; i < len(u.History); i++ {
					u.History[i].Cause = cause
				}
			}
			if _, err := mt.apply(entity.LineCredit, key, delta); err != nil {
				return err
			}
			if err := mt.flushSerials(0); err != nil {
				return err
			}
			pos = mt.touched[key].Clone()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	uc.cache.Invalidate(ctx, key)
	uc.log.Debug().Str("position", key.String()).Bool("allocate", allocate).Str("quantity", in.Quantity.String()).Msg("reserva actualizada")
	return pos, nil
}

// ── Post-commit ─────────────────────────────────────────────────────────────

func (uc *RegisterMovementUseCase) publish(ctx context.Context, r *MovementResult, expired []*entity.Lot) {
	keys := make([]entity.PositionKey, 0, len(r.Positions))
	for _, p := range r.Positions {
		keys = append(keys, p.Key)
	}
	uc.cache.Invalidate(ctx, keys...)

	m := r.Movement
	uc.notifier.Notify(entity.CommitEvent{
		MovementNumber: m.MovementNumber,
		Type:           m.Type,
		Pairs:          m.TouchedPairs(),
		ExpiredLots:    lotValues(expired),
		At:             m.CreatedAt,
	})
	uc.log.Info().
		Int64("movement_number", m.MovementNumber).
		Str("type", string(m.Type)).
		Str("product_id", m.ProductID).
		Str("quantity", m.Quantity.String()).
		Int64("reversal_of", m.ReversalOf).
		Msg("movimiento registrado")
}

// publishExpired reporta lotes vencidos detectados por un movimiento que no se aplicó.
func (uc *RegisterMovementUseCase) publishExpired(expired []*entity.Lot) {
	if len(expired) == 0 {
		return
	}
	seen := make(map[entity.ProductWarehouse]struct{})
	var pairs []entity.ProductWarehouse
	for _, l := range expired {
		pw := entity.ProductWarehouse{ProductID: l.ProductID(), WarehouseID: l.WarehouseID()}
		if _, ok := seen[pw]; !ok {
			seen[pw] = struct{}{}
			pairs = append(pairs, pw)
		}
	}
	uc.notifier.Notify(entity.CommitEvent{Pairs: pairs, ExpiredLots: lotValues(expired), At: uc.now()})
}

func lotValues(lots []*entity.Lot) []entity.Lot {
	if len(lots) == 0 {
		return nil
	}
	out := make([]entity.Lot, 0, len(lots))
	for _, l := range lots {
		out = append(out, *l.Clone())
	}
	return out
}

func (uc *RegisterMovementUseCase) onRetry(op string) func(int, error) {
	return func(attempt int, err error) {
		uc.log.Warn().Err(err).Str("operation", op).Int("attempt", attempt).Msg("conflicto de concurrencia, reintentando")
	}
}
