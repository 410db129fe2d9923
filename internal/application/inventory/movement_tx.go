package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// movementTx estado de un movimiento dentro de una transacción: posiciones tocadas, líneas,
// entradas de lote y seriales pendientes de guardar hasta conocer el número de movimiento.
type movementTx struct {
	ctx       context.Context
	positions repository.PositionRepository
	lots      repository.LotRepository
	serials   repository.SerialRepository
	product   *entity.Product
	now       time.Time

	touched map[entity.PositionKey]*entity.Position
	order   []entity.PositionKey

	lines      []entity.MovementLine
	lotEntries []entity.LotEntry
	serialLog  []entity.SerialEntry
	dirty      []dirtySerial
	expired    []*entity.Lot
}

type dirtySerial struct {
	unit *entity.SerialUnit
	from int // índice del primer evento agregado en esta transacción
}

// consumedLot porción de un lote retirada de una posición.
type consumedLot struct {
	lot      *entity.Lot
	quantity decimal.Decimal
}

func newMovementTx(
	ctx context.Context,
	positions repository.PositionRepository,
	lots repository.LotRepository,
	serials repository.SerialRepository,
	product *entity.Product,
	now time.Time,
) *movementTx {
	return &movementTx{
		ctx:       ctx,
		positions: positions,
		lots:      lots,
		serials:   serials,
		product:   product,
		now:       now,
		touched:   make(map[entity.PositionKey]*entity.Position),
	}
}

func (mt *movementTx) today() time.Time {
	y, m, d := mt.now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (mt *movementTx) position(key entity.PositionKey) (*entity.Position, error) {
	if pos, ok := mt.touched[key]; ok {
		return pos, nil
	}
	pos, err := mt.positions.Get(mt.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	mt.touched[key] = pos
	mt.order = append(mt.order, key)
	return pos, nil
}

// apply aplica el delta sobre la posición, la persiste y registra la línea del movimiento.
func (mt *movementTx) apply(role entity.LineRole, key entity.PositionKey, d inventory.Delta) (*entity.MovementLine, error) {
	pos, err := mt.position(key)
	if err != nil {
		return nil, err
	}
	before, allocBefore := pos.OnHand, pos.Allocated
	if err := inventory.ApplyDelta(pos, d, mt.now); err != nil {
		return nil, err
	}
	if err := mt.positions.Save(mt.ctx, pos); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	mt.lines = append(mt.lines, entity.MovementLine{
		Role:           role,
		Position:       key,
		OnHandDelta:    pos.OnHand.Sub(before),
		AllocatedDelta: pos.Allocated.Sub(allocBefore),
		QuantityBefore: before,
		QuantityAfter:  pos.OnHand,
	})
	return &mt.lines[len(mt.lines)-1], nil
}

func (mt *movementTx) touchedPositions() []*entity.Position {
	out := make([]*entity.Position, 0, len(mt.order))
	for _, k := range mt.order {
		out = append(out, mt.touched[k].Clone())
	}
	return out
}

// ── Lotes ───────────────────────────────────────────────────────────────────

// lotReceipt ingreso de existencias a un lote en una posición.
type lotReceipt struct {
	key        entity.PositionKey
	lotNumber  string
	quantity   decimal.Decimal
	expiry     *time.Time
	quality    entity.QualityStatus
	template   *entity.Lot // lote origen en traslados: se copian vencimiento, recepción y calidad
	addInitial bool
}

// receiveLot suma existencias al registro del lote en la posición, creándolo si no existe.
// Un lote consumido se reactiva; uno vencido o retirado no admite ingresos.
func (mt *movementTx) receiveLot(r lotReceipt) error {
	lk := entity.LotKey{Position: r.key, LotNumber: r.lotNumber}
	l, err := mt.lots.Get(mt.ctx, lk)
	if err != nil {
		return fmt.Errorf("get lot: %w", err)
	}
	if l == nil {
		l, err = mt.newLot(lk, r)
		if err != nil {
			return err
		}
	} else {
		switch l.Status {
		case entity.LotActive:
		case entity.LotConsumed:
			l.Status = entity.LotActive
		default:
			return invalid("el lote %s está %s y no admite ingresos", r.lotNumber, l.Status)
		}
		l.CurrentQuantity = l.CurrentQuantity.Add(r.quantity)
		if r.addInitial {
			l.InitialQuantity = l.InitialQuantity.Add(r.quantity)
		}
		if r.expiry != nil && r.template == nil && l.ExpiryDate == nil {
			l.ExpiryDate = r.expiry
		}
	}
	l.UpdatedAt = mt.now
	if err := mt.lots.Save(mt.ctx, l); err != nil {
		return fmt.Errorf("save lot: %w", err)
	}
	mt.lotEntries = append(mt.lotEntries, entity.LotEntry{Lot: lk, Quantity: r.quantity, ExpiryDate: l.ExpiryDate})
	return nil
}

func (mt *movementTx) newLot(lk entity.LotKey, r lotReceipt) (*entity.Lot, error) {
	l := &entity.Lot{
		ID:              uuid.New().String(),
		Key:             lk,
		InitialQuantity: r.quantity,
		CurrentQuantity: r.quantity,
		ExpiryDate:      r.expiry,
		ReceivedDate:    mt.now,
		QualityStatus:   r.quality,
		Status:          entity.LotActive,
	}
	if r.template != nil {
		l.ExpiryDate = r.template.ExpiryDate
		l.ReceivedDate = r.template.ReceivedDate
		l.QualityStatus = r.template.QualityStatus
		return l, nil
	}
	// el mismo número de lote en otra posición comparte vencimiento y calidad
	siblings, err := mt.lots.List(mt.ctx, repository.LotFilter{ProductID: lk.Position.ProductID, LotNumber: lk.LotNumber})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(siblings) > 0 {
		s := siblings[0]
		if s.Status == entity.LotRecalled || s.Status == entity.LotExpired {
			return nil, invalid("el lote %s está %s y no admite ingresos", lk.LotNumber, s.Status)
		}
		if l.ExpiryDate == nil {
			l.ExpiryDate = s.ExpiryDate
		}
		if r.quality == "" {
			l.QualityStatus = s.QualityStatus
		}
	}
	if l.QualityStatus == "" {
		l.QualityStatus = entity.QualityApproved
	}
	if l.ExpiryDate == nil && mt.product.HasExpiry {
		if mt.product.ShelfLifeDays <= 0 {
			return nil, invalid("el producto %s requiere fecha de vencimiento para el lote %s", mt.product.ID, lk.LotNumber)
		}
		exp := mt.today().AddDate(0, 0, mt.product.ShelfLifeDays)
		l.ExpiryDate = &exp
	}
	return l, nil
}

// consumeLots retira qty de los lotes de la posición. Con lotNumber explícito se usa ese lote;
// si no, el asignador FEFO. strict exige que el lote explícito sea asignable (salidas a clientes).
// Los lotes vencidos encontrados quedan en mt.expired aunque la operación falle.
func (mt *movementTx) consumeLots(key entity.PositionKey, qty decimal.Decimal, lotNumber string, strict bool) ([]consumedLot, error) {
	var allocs []inventory.LotAllocation
	if lotNumber != "" {
		l, err := mt.lots.Get(mt.ctx, entity.LotKey{Position: key, LotNumber: lotNumber})
		if err != nil {
			return nil, fmt.Errorf("get lot: %w", err)
		}
		if l == nil {
			return nil, fmt.Errorf("%w: lote %s en %s", domain.ErrReferenceNotFound, lotNumber, key)
		}
		if l.Status != entity.LotActive {
			return nil, invalid("el lote %s está %s", lotNumber, l.Status)
		}
		if strict && !inventory.IsAllocatable(l, mt.today()) {
			if l.IsExpiredAt(mt.today()) {
				mt.expired = append(mt.expired, l)
			}
			return nil, invalid("el lote %s no es asignable (calidad %s, vencimiento)", lotNumber, l.QualityStatus)
		}
		if l.CurrentQuantity.LessThan(qty) {
			return nil, fmt.Errorf("%w: lote %s tiene %s, solicitado %s", domain.ErrInsufficientLotStock, lotNumber, l.CurrentQuantity, qty)
		}
		allocs = []inventory.LotAllocation{{Lot: l, Quantity: qty}}
	} else {
		candidates, err := mt.lots.ListByPosition(mt.ctx, key)
		if err != nil {
			return nil, fmt.Errorf("list lots: %w", err)
		}
		var expired []*entity.Lot
		allocs, expired, err = inventory.SelectLots(candidates, qty, mt.today())
		mt.expired = append(mt.expired, expired...)
		if err != nil {
			return nil, err
		}
	}

	out := make([]consumedLot, 0, len(allocs))
	for _, a := range allocs {
		l := a.Lot
		l.CurrentQuantity = l.CurrentQuantity.Sub(a.Quantity)
		if l.CurrentQuantity.IsZero() {
			l.Status = entity.LotConsumed
		}
		l.UpdatedAt = mt.now
		if err := mt.lots.Save(mt.ctx, l); err != nil {
			return nil, fmt.Errorf("save lot: %w", err)
		}
		mt.lotEntries = append(mt.lotEntries, entity.LotEntry{Lot: l.Key, Quantity: a.Quantity.Neg(), ExpiryDate: l.ExpiryDate})
		out = append(out, consumedLot{lot: l.Clone(), quantity: a.Quantity})
	}
	return out, nil
}

// ── Seriales ────────────────────────────────────────────────────────────────

func (mt *movementTx) serial(sn string) (*entity.SerialUnit, error) {
	u, err := mt.serials.Get(mt.ctx, mt.product.ID, sn)
	if err != nil {
		return nil, fmt.Errorf("get serial: %w", err)
	}
	return u, nil
}

// step agrega los eventos de la ruta de estados y actualiza la ubicación.
func (mt *movementTx) step(u *entity.SerialUnit, path []entity.SerialStatus, key entity.PositionKey) {
	from := u.Status
	first := len(u.History)
	if len(path) == 0 {
		// cambio de ubicación sin cambio de estado
		path = []entity.SerialStatus{u.Status}
	}
	for _, to := range path {
		u.History = append(u.History, entity.SerialEvent{
			From: u.Status, To: to, WarehouseID: key.WarehouseID, LocationID: key.LocationID, At: mt.now,
		})
		u.Status = to
	}
	u.VariantID, u.WarehouseID, u.LocationID = key.VariantID, key.WarehouseID, key.LocationID
	u.UpdatedAt = mt.now
	mt.dirty = append(mt.dirty, dirtySerial{unit: u, from: first})
	mt.serialLog = append(mt.serialLog, entity.SerialEntry{SerialNumber: u.SerialNumber, From: from, To: u.Status, Position: key})
}

// receiveSerials registra unidades que ingresan a key. En recepción un serial activo es duplicado
// y uno terminal (incluido scrapped) se reactiva; en devolución la unidad debe haber salido
// (vendida, enviada o en garantía).
func (mt *movementTx) receiveSerials(sns []string, key entity.PositionKey, isReturn bool) error {
	for _, sn := range sns {
		u, err := mt.serial(sn)
		if err != nil {
			return err
		}
		switch {
		case u == nil && isReturn:
			return fmt.Errorf("%w: serial %s", domain.ErrReferenceNotFound, sn)
		case u == nil:
			u = &entity.SerialUnit{ProductID: mt.product.ID, SerialNumber: sn, Status: entity.SerialInStock, CreatedAt: mt.now}
			u.History = append(u.History, entity.SerialEvent{
				To: entity.SerialInStock, WarehouseID: key.WarehouseID, LocationID: key.LocationID, At: mt.now,
			})
			u.VariantID, u.WarehouseID, u.LocationID = key.VariantID, key.WarehouseID, key.LocationID
			u.UpdatedAt = mt.now
			mt.dirty = append(mt.dirty, dirtySerial{unit: u, from: 0})
			mt.serialLog = append(mt.serialLog, entity.SerialEntry{SerialNumber: sn, To: entity.SerialInStock, Position: key})
			continue
		case inventory.IsSerialActive(u.Status) && !isReturn:
			return fmt.Errorf("%w: %s ya está registrado (%s)", domain.ErrDuplicateSerial, sn, u.Status)
		case isReturn && (inventory.IsSerialActive(u.Status) || u.Status == entity.SerialScrapped):
			return fmt.Errorf("%w: %s está %s y no puede devolverse", domain.ErrInvalidSerialState, sn, u.Status)
		}
		// unidad terminal que vuelve a stock: pasa por returned
		mt.step(u, []entity.SerialStatus{entity.SerialReturned, entity.SerialInStock}, key)
	}
	return nil
}

// dispatchSerials valida que las unidades estén en key y listas para salir. Devuelve cuántas estaban reservadas.
func (mt *movementTx) dispatchSerials(sns []string, key entity.PositionKey) ([]*entity.SerialUnit, int, error) {
	units := make([]*entity.SerialUnit, 0, len(sns))
	allocated := 0
	for _, sn := range sns {
		u, err := mt.serial(sn)
		if err != nil {
			return nil, 0, err
		}
		if u == nil {
			return nil, 0, fmt.Errorf("%w: serial %s", domain.ErrReferenceNotFound, sn)
		}
		if !inventory.IsSerialMovable(u.Status) {
			return nil, 0, fmt.Errorf("%w: %s está %s", domain.ErrInvalidSerialState, sn, u.Status)
		}
		if u.Position() != key {
			return nil, 0, fmt.Errorf("%w: %s no está en %s", domain.ErrInvalidSerialState, sn, key)
		}
		if u.Status == entity.SerialAllocated {
			allocated++
		}
		units = append(units, u)
	}
	return units, allocated, nil
}

// finishSerials lleva las unidades al estado final target (shipped, sold, scrapped).
func (mt *movementTx) finishSerials(units []*entity.SerialUnit, key entity.PositionKey, target entity.SerialStatus) error {
	for _, u := range units {
		path, err := inventory.SerialPath(u.Status, target)
		if err != nil {
			return fmt.Errorf("serial %s: %w", u.SerialNumber, err)
		}
		mt.step(u, path, key)
		if (target == entity.SerialSold || target == entity.SerialShipped) && mt.product.WarrantyDays > 0 {
			start := mt.now
			end := start.AddDate(0, 0, mt.product.WarrantyDays)
			u.WarrantyStart, u.WarrantyEnd = &start, &end
		}
	}
	return nil
}

// flushSerials persiste las unidades modificadas enlazando sus eventos al movimiento.
func (mt *movementTx) flushSerials(movementNumber int64) error {
	for _, d := range mt.dirty {
		for i := d.from; i < len(d.unit.History); i++ {
			d.unit.History[i].MovementNumber = movementNumber
		}
		if err := mt.serials.Save(mt.ctx, d.unit); err != nil {
			return fmt.Errorf("save serial: %w", err)
		}
	}
	mt.dirty = nil
	return nil
}
