package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Todos los repositorios devuelven copias: quien llama puede mutar el resultado sin afectar el store.
// Con tx != nil las lecturas ven primero el overlay y las escrituras solo lo modifican.

type positionRepo struct {
	s  *Store
	tx *txState
}

func (r *positionRepo) Get(_ context.Context, key entity.PositionKey) (*entity.Position, error) {
	if r.tx != nil {
		if p, ok := r.tx.positions[key]; ok {
			return p.Clone(), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if p, ok := r.s.positions[key]; ok {
		return p.Clone(), nil
	}
	return entity.NewPosition(key), nil
}

func (r *positionRepo) Save(_ context.Context, pos *entity.Position) error {
	if r.tx != nil {
		r.tx.positions[pos.Key] = pos.Clone()
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.positions[pos.Key] = pos.Clone()
	return nil
}

func (r *positionRepo) List(_ context.Context, f repository.PositionFilter) ([]*entity.Position, error) {
	merged := make(map[entity.PositionKey]*entity.Position)
	r.s.mu.RLock()
	for k, p := range r.s.positions {
		merged[k] = p
	}
	r.s.mu.RUnlock()
	if r.tx != nil {
		for k, p := range r.tx.positions {
			merged[k] = p
		}
	}
	out := make([]*entity.Position, 0)
	for k, p := range merged {
		if f.ProductID != "" && k.ProductID != f.ProductID ||
			f.VariantID != "" && k.VariantID != f.VariantID ||
			f.WarehouseID != "" && k.WarehouseID != f.WarehouseID ||
			f.LocationID != "" && k.LocationID != f.LocationID ||
			f.NonZeroOnly && p.OnHand.IsZero() && p.Allocated.IsZero() && p.InTransit.IsZero() {
			continue
		}
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *entity.Position) int { return cmp.Compare(a.Key.String(), b.Key.String()) })
	return out, nil
}

type lotRepo struct {
	s  *Store
	tx *txState
}

func (r *lotRepo) Get(_ context.Context, key entity.LotKey) (*entity.Lot, error) {
	if r.tx != nil {
		if l, ok := r.tx.lots[key]; ok {
			return l.Clone(), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.lots[key].Clone(), nil
}

func (r *lotRepo) ListByPosition(ctx context.Context, key entity.PositionKey) ([]*entity.Lot, error) {
	all, err := r.list(func(l *entity.Lot) bool { return l.Key.Position == key })
	return all, err
}

func (r *lotRepo) List(_ context.Context, f repository.LotFilter) ([]*entity.Lot, error) {
	return r.list(func(l *entity.Lot) bool {
		return (f.ProductID == "" || l.ProductID() == f.ProductID) &&
			(f.WarehouseID == "" || l.WarehouseID() == f.WarehouseID) &&
			(f.LotNumber == "" || l.Key.LotNumber == f.LotNumber) &&
			(f.Status == "" || l.Status == f.Status)
	})
}

func (r *lotRepo) list(match func(*entity.Lot) bool) ([]*entity.Lot, error) {
	merged := make(map[entity.LotKey]*entity.Lot)
	r.s.mu.RLock()
	for k, l := range r.s.lots {
		merged[k] = l
	}
	r.s.mu.RUnlock()
	if r.tx != nil {
		for k, l := range r.tx.lots {
			merged[k] = l
		}
	}
	out := make([]*entity.Lot, 0)
	for _, l := range merged {
		if match(l) {
			out = append(out, l.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *entity.Lot) int { return cmp.Compare(a.Key.String(), b.Key.String()) })
	return out, nil
}

func (r *lotRepo) Save(_ context.Context, lot *entity.Lot) error {
	if r.tx != nil {
		r.tx.lots[lot.Key] = lot.Clone()
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lots[lot.Key] = lot.Clone()
	return nil
}

type serialRepo struct {
	s  *Store
	tx *txState
}

func (r *serialRepo) Get(_ context.Context, productID, serialNumber string) (*entity.SerialUnit, error) {
	k := serialKey{productID: productID, serialNumber: serialNumber}
	if r.tx != nil {
		if u, ok := r.tx.serials[k]; ok {
			return u.Clone(), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.serials[k].Clone(), nil
}

func (r *serialRepo) Save(_ context.Context, unit *entity.SerialUnit) error {
	k := serialKey{productID: unit.ProductID, serialNumber: unit.SerialNumber}
	if r.tx != nil {
		r.tx.serials[k] = unit.Clone()
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.serials[k] = unit.Clone()
	return nil
}

func (r *serialRepo) List(_ context.Context, f repository.SerialFilter) ([]*entity.SerialUnit, error) {
	merged := make(map[serialKey]*entity.SerialUnit)
	r.s.mu.RLock()
	for k, u := range r.s.serials {
		merged[k] = u
	}
	r.s.mu.RUnlock()
	if r.tx != nil {
		for k, u := range r.tx.serials {
			merged[k] = u
		}
	}
	out := make([]*entity.SerialUnit, 0)
	for _, u := range merged {
		if f.ProductID != "" && u.ProductID != f.ProductID ||
			f.WarehouseID != "" && u.WarehouseID != f.WarehouseID ||
			f.LocationID != "" && u.LocationID != f.LocationID ||
			f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, u.Clone())
	}
	slices.SortFunc(out, func(a, b *entity.SerialUnit) int { return cmp.Compare(a.SerialNumber, b.SerialNumber) })
	return out, nil
}

type movementRepo struct {
	s  *Store
	tx *txState
}

// Append asigna el siguiente número de la secuencia. Si la transacción se aborta el número se pierde.
func (r *movementRepo) Append(_ context.Context, m *entity.Movement) error {
	m.MovementNumber = r.s.seq.Add(1)
	if r.tx != nil {
		r.tx.movements = append(r.tx.movements, m.Clone())
		return nil
	}
	tx := newTxState()
	tx.movements = append(tx.movements, m.Clone())
	r.s.commit(tx)
	return nil
}

func (r *movementRepo) GetByNumber(_ context.Context, number int64) (*entity.Movement, error) {
	if r.tx != nil {
		for _, m := range r.tx.movements {
			if m.MovementNumber == number {
				return m.Clone(), nil
			}
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, ok := slices.BinarySearchFunc(r.s.movements, number, func(e *entity.Movement, n int64) int {
		return cmp.Compare(e.MovementNumber, n)
	})
	if !ok {
		return nil, nil
	}
	return r.s.movements[i].Clone(), nil
}

func (r *movementRepo) FindReversal(ctx context.Context, number int64) (*entity.Movement, error) {
	if r.tx != nil {
		for _, m := range r.tx.movements {
			if m.ReversalOf == number {
				return m.Clone(), nil
			}
		}
	}
	r.s.mu.RLock()
	rev, ok := r.s.reversals[number]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByNumber(ctx, rev)
}

// Query recorre el ledger confirmado por número de movimiento, un registro por paso: entre pasos
// no se retiene el lock, así que los commits concurrentes no se bloquean.
func (r *movementRepo) Query(ctx context.Context, f repository.MovementFilter) iter.Seq2[*entity.Movement, error] {
	return func(yield func(*entity.Movement, error) bool) {
		cursor := f.After
		emitted := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if f.Limit > 0 && emitted >= f.Limit {
				return
			}
			next := r.nextMatch(cursor, f)
			if next == nil {
				return
			}
			cursor = next.MovementNumber
			emitted++
			if !yield(next, nil) {
				return
			}
		}
	}
}

func (r *movementRepo) nextMatch(after int64, f repository.MovementFilter) *entity.Movement {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, found := slices.BinarySearchFunc(r.s.movements, after, func(e *entity.Movement, n int64) int {
		return cmp.Compare(e.MovementNumber, n)
	})
	if found {
		i++
	}
	for ; i < len(r.s.movements); i++ {
		if m := r.s.movements[i]; MatchMovement(m, f) {
			return m.Clone()
		}
	}
	return nil
}

// MatchMovement indica si el movimiento cumple el filtro. WarehouseID coincide con origen o destino.
func MatchMovement(m *entity.Movement, f repository.MovementFilter) bool {
	if f.ProductID != "" && m.ProductID != f.ProductID {
		return false
	}
	if f.WarehouseID != "" && m.WarehouseID != f.WarehouseID && m.ToWarehouseID != f.WarehouseID {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

