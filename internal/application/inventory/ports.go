package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción, pasando repositorios atados a esa tx.
// Antes de invocar fn adquiere en orden global (ordenadas) las claves de lockKeys; si no lo logra
// a tiempo devuelve domain.ErrConcurrencyConflict. Si fn devuelve error nada queda aplicado.
type TxRunner interface {
	Run(ctx context.Context, lockKeys []string, fn func(
		movRepo repository.MovementRepository,
		positionRepo repository.PositionRepository,
		lotRepo repository.LotRepository,
		serialRepo repository.SerialRepository,
	) error) error
}

// PositionCache caché de lectura de posiciones. Las implementaciones no deben fallar la operación
// del ledger: los errores se registran y se ignoran.
//
// Get devuelve, junto con el fallo, la generación vigente de la clave. Set recibe esa generación
// y descarta la escritura si entre tanto hubo un Invalidate de esa clave.
type PositionCache interface {
	Get(ctx context.Context, key entity.PositionKey) (pos *entity.Position, gen uint64, ok bool)
	Set(ctx context.Context, pos *entity.Position, gen uint64)
	Invalidate(ctx context.Context, keys ...entity.PositionKey)
}

// CommitNotifier recibe los eventos de commit (motor de alertas). Notify no debe bloquear al escritor.
type CommitNotifier interface {
	Notify(ev entity.CommitEvent)
}

type noopCache struct{}

func (noopCache) Get(context.Context, entity.PositionKey) (*entity.Position, uint64, bool) {
	return nil, 0, false
}
func (noopCache) Set(context.Context, *entity.Position, uint64)     {}
func (noopCache) Invalidate(context.Context, ...entity.PositionKey) {}

type noopNotifier struct{}

func (noopNotifier) Notify(entity.CommitEvent) {}
