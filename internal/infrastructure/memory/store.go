// Package memory implementa los puertos de persistencia en memoria: mismo contrato transaccional
// que PostgreSQL (bloqueo por clave, todo o nada) para desarrollo, tests y despliegues de un solo nodo.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*TxRunner)(nil)

type serialKey struct {
	productID    string
	serialNumber string
}

// Store estado confirmado del ledger. Las escrituras transaccionales se acumulan en un overlay
// y se aplican de una vez al confirmar.
type Store struct {
	mu        sync.RWMutex
	positions map[entity.PositionKey]*entity.Position
	lots      map[entity.LotKey]*entity.Lot
	serials   map[serialKey]*entity.SerialUnit
	movements []*entity.Movement // ordenados por MovementNumber
	reversals map[int64]int64    // movimiento original -> reverso

	seq   atomic.Int64
	locks *keyLocks
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		positions: make(map[entity.PositionKey]*entity.Position),
		lots:      make(map[entity.LotKey]*entity.Lot),
		serials:   make(map[serialKey]*entity.SerialUnit),
		reversals: make(map[int64]int64),
		locks:     newKeyLocks(),
	}
}

// Positions repositorio de lectura sobre el estado confirmado.
func (s *Store) Positions() repository.PositionRepository { return &positionRepo{s: s} }

// Lots repositorio de lectura sobre el estado confirmado.
func (s *Store) Lots() repository.LotRepository { return &lotRepo{s: s} }

// Serials repositorio de lectura sobre el estado confirmado.
func (s *Store) Serials() repository.SerialRepository { return &serialRepo{s: s} }

// Movements ledger de movimientos confirmados.
func (s *Store) Movements() repository.MovementRepository { return &movementRepo{s: s} }

// txState cambios pendientes de una transacción.
type txState struct {
	positions map[entity.PositionKey]*entity.Position
	lots      map[entity.LotKey]*entity.Lot
	serials   map[serialKey]*entity.SerialUnit
	movements []*entity.Movement
}

func newTxState() *txState {
	return &txState{
		positions: make(map[entity.PositionKey]*entity.Position),
		lots:      make(map[entity.LotKey]*entity.Lot),
		serials:   make(map[serialKey]*entity.SerialUnit),
	}
}

// commit aplica el overlay de forma atómica respecto a los lectores.
func (s *Store) commit(tx *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range tx.positions {
		s.positions[k] = p
	}
	for k, l := range tx.lots {
		s.lots[k] = l
	}
	for k, u := range tx.serials {
		s.serials[k] = u
	}
	for _, m := range tx.movements {
		i, _ := slices.BinarySearchFunc(s.movements, m.MovementNumber, func(e *entity.Movement, n int64) int {
			return cmp.Compare(e.MovementNumber, n)
		})
		s.movements = slices.Insert(s.movements, i, m)
		if m.ReversalOf != 0 {
			s.reversals[m.ReversalOf] = m.MovementNumber
		}
	}
}

// TxRunner ejecuta callbacks con repositorios atados a un overlay transaccional.
type TxRunner struct {
	store       *Store
	lockTimeout time.Duration
}

// NewTxRunner construye el runner. lockTimeout acota la espera por claves (0 = espera solo al contexto).
func NewTxRunner(store *Store, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{store: store, lockTimeout: lockTimeout}
}

// Run adquiere las claves en orden, ejecuta fn y confirma el overlay si fn no falla.
func (r *TxRunner) Run(ctx context.Context, lockKeys []string, fn func(
	movRepo repository.MovementRepository,
	positionRepo repository.PositionRepository,
	lotRepo repository.LotRepository,
	serialRepo repository.SerialRepository,
) error) error {
	release, err := r.store.locks.acquire(ctx, lockKeys, r.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	tx := newTxState()
	s := r.store
	if err := fn(&movementRepo{s: s, tx: tx}, &positionRepo{s: s, tx: tx}, &lotRepo{s: s, tx: tx}, &serialRepo{s: s, tx: tx}); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// keyLocks exclusión mutua por clave. Cada clave es un semáforo de capacidad 1 con conteo de
// referencias para liberar la entrada cuando nadie la usa.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]*keyLock)}
}

func (l *keyLocks) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.m[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.m[key] = kl
	}
	kl.refs++
	return kl
}

func (l *keyLocks) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.m[key]; ok {
		kl.refs--
		if kl.refs == 0 {
			delete(l.m, key)
		}
	}
}

// acquire toma las claves en orden lexicográfico (sin duplicados) para evitar interbloqueos.
// Si no lo logra antes de timeout devuelve domain.ErrConcurrencyConflict sin retener ninguna.
func (l *keyLocks) acquire(ctx context.Context, keys []string, timeout time.Duration) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	held := make([]*keyLock, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			l.unref(sorted[i])
		}
	}
	for _, k := range sorted {
		kl := l.ref(k)
		select {
		case kl.ch <- struct{}{}:
			held = append(held, kl)
		case <-waitCtx.Done():
			l.unref(k)
			release()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: clave %s ocupada", domain.ErrConcurrencyConflict, k)
		}
	}
	return release, nil
}
