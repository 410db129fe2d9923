package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/redis"
)

// slowPositions ejecuta afterLoad una vez, entre la lectura del store y el retorno.
type slowPositions struct {
	repository.PositionRepository
	afterLoad func()
}

func (r *slowPositions) Get(ctx context.Context, key entity.PositionKey) (*entity.Position, error) {
	pos, err := r.PositionRepository.Get(ctx, key)
	if f := r.afterLoad; f != nil {
		r.afterLoad = nil
		f()
	}
	return pos, err
}

func TestGetPosition_CommitDuringLoadIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := redis.NewPositionCache(client, time.Minute, nil)

	catalog := memory.NewCatalog()
	catalog.PutProduct(entity.Product{ID: "BOLT", Status: entity.LifecycleActive})
	catalog.PutWarehouse(entity.Warehouse{ID: "W1", Status: entity.LifecycleActive})
	catalog.PutLocation(entity.Location{ID: "A-01", WarehouseID: "W1", Status: entity.LifecycleActive})
	store := memory.NewStore()
	uc := inventory.NewRegisterMovementUseCase(memory.NewTxRunner(store, time.Second), catalog.Products(), catalog.Warehouses(),
		inventory.WithPositionCache(cache))
	ctx := context.Background()
	receipt := inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(10)}

	_, err := uc.RegisterMovement(ctx, receipt)
	require.NoError(t, err)

	positions := &slowPositions{PositionRepository: store.Positions()}
	ledger := inventory.NewLedgerService(positions, store.Movements(), cache, nil)
	positions.afterLoad = func() {
		receipt.Quantity = qty(5)
		_, err := uc.RegisterMovement(ctx, receipt)
		require.NoError(t, err)
	}

	pos, err := ledger.GetPosition(ctx, boltA)
	require.NoError(t, err)
	assert.True(t, pos.OnHand.Equal(qty(10)), "la lectura concurrente ve el estado previo")

	pos, err = ledger.GetPosition(ctx, boltA)
	require.NoError(t, err)
	assert.True(t, pos.OnHand.Equal(qty(15)), "tras el commit no se sirve la posición anterior")

	cached, _, ok := cache.Get(ctx, boltA)
	require.True(t, ok)
	assert.True(t, cached.OnHand.Equal(qty(15)))
}
