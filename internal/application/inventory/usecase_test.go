package inventory_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

var (
	boltA   = entity.PositionKey{ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01"}
	boltW2  = entity.PositionKey{ProductID: "BOLT", WarehouseID: "W2", LocationID: "C-01"}
	medA    = entity.PositionKey{ProductID: "MED", WarehouseID: "W1", LocationID: "A-01"}
	medB    = entity.PositionKey{ProductID: "MED", WarehouseID: "W1", LocationID: "B-01"}
	phoneA  = entity.PositionKey{ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01"}
	phoneB  = entity.PositionKey{ProductID: "PHONE", WarehouseID: "W1", LocationID: "B-01"}
	phoneW2 = entity.PositionKey{ProductID: "PHONE", WarehouseID: "W2", LocationID: "C-01"}
)

// MovementSuite ejercita el procesador de movimientos sobre el store en memoria.
type MovementSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *memory.Store
	catalog *memory.Catalog
	uc      *inventory.RegisterMovementUseCase
	ledger  *inventory.LedgerService
}

func TestMovementSuite(t *testing.T) {
	suite.Run(t, new(MovementSuite))
}

func (s *MovementSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

	s.catalog = memory.NewCatalog()
	s.catalog.PutProduct(entity.Product{
		ID: "BOLT", SKU: "BOLT-01", Name: "Tornillo", Status: entity.LifecycleActive,
		ReorderPoint:  decimal.NewNullDecimal(qty(10)),
		MaxStockLevel: decimal.NewNullDecimal(qty(100)),
	})
	s.catalog.PutProduct(entity.Product{ID: "MED", SKU: "MED-01", Name: "Jarabe", Status: entity.LifecycleActive, IsLotTracked: true, HasExpiry: true, ShelfLifeDays: 365})
	s.catalog.PutProduct(entity.Product{ID: "PHONE", SKU: "PH-01", Name: "Teléfono", Status: entity.LifecycleActive, IsSerialized: true, WarrantyDays: 365})
	s.catalog.PutProduct(entity.Product{ID: "OLD", SKU: "OLD-01", Name: "Descontinuado", Status: entity.LifecycleArchived})
	s.catalog.PutWarehouse(entity.Warehouse{ID: "W1", Code: "W1", Status: entity.LifecycleActive})
	s.catalog.PutWarehouse(entity.Warehouse{ID: "W2", Code: "W2", Status: entity.LifecycleActive})
	s.catalog.PutLocation(entity.Location{ID: "A-01", WarehouseID: "W1", Status: entity.LifecycleActive})
	s.catalog.PutLocation(entity.Location{ID: "B-01", WarehouseID: "W1", Status: entity.LifecycleActive})
	s.catalog.PutLocation(entity.Location{ID: "Z-99", WarehouseID: "W1", Status: entity.LifecycleArchived})
	s.catalog.PutLocation(entity.Location{ID: "C-01", WarehouseID: "W2", Status: entity.LifecycleActive})

	s.store = memory.NewStore()
	s.uc = inventory.NewRegisterMovementUseCase(
		memory.NewTxRunner(s.store, 2*time.Second),
		s.catalog.Products(),
		s.catalog.Warehouses(),
		inventory.WithClock(func() time.Time { return s.now }),
		inventory.WithRetryPolicy(inventory.RetryPolicy{MaxRetries: 5, Base: time.Millisecond}),
	)
	s.ledger = inventory.NewLedgerService(s.store.Positions(), s.store.Movements(), nil, nil)
}

func (s *MovementSuite) register(in inventory.MovementInputDTO) (*inventory.MovementResult, error) {
	return s.uc.RegisterMovement(s.ctx, in)
}

func (s *MovementSuite) mustRegister(in inventory.MovementInputDTO) *inventory.MovementResult {
	res, err := s.register(in)
	s.Require().NoError(err)
	return res
}

func (s *MovementSuite) receive(key entity.PositionKey, n int64) *inventory.MovementResult {
	return s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: key.ProductID, WarehouseID: key.WarehouseID, LocationID: key.LocationID, Quantity: qty(n),
	})
}

func (s *MovementSuite) receiveLot(key entity.PositionKey, lot string, n int64, expiry *time.Time) {
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: key.ProductID, WarehouseID: key.WarehouseID, LocationID: key.LocationID,
		Quantity: qty(n), LotNumber: lot, ExpiryDate: expiry,
	})
}

func (s *MovementSuite) issue(key entity.PositionKey, n int64) (*inventory.MovementResult, error) {
	return s.register(inventory.MovementInputDTO{
		Type: entity.MovementIssue, ProductID: key.ProductID, WarehouseID: key.WarehouseID, LocationID: key.LocationID, Quantity: qty(n),
	})
}

func (s *MovementSuite) position(key entity.PositionKey) *entity.Position {
	pos, err := s.ledger.GetPosition(s.ctx, key)
	s.Require().NoError(err)
	return pos
}

func (s *MovementSuite) lot(key entity.PositionKey, number string) *entity.Lot {
	l, err := s.store.Lots().Get(s.ctx, entity.LotKey{Position: key, LotNumber: number})
	s.Require().NoError(err)
	s.Require().NotNil(l, "lote %s en %s", number, key)
	return l
}

// assertBalances verifica on_hand = allocated + available, cantidades no negativas y que la suma
// de los lotes de cada posición coincida con su on_hand.
func (s *MovementSuite) assertBalances() {
	positions, err := s.store.Positions().List(s.ctx, repository.PositionFilter{})
	s.Require().NoError(err)
	lots, err := s.store.Lots().List(s.ctx, repository.LotFilter{})
	s.Require().NoError(err)

	lotSum := make(map[entity.PositionKey]decimal.Decimal)
	for _, l := range lots {
		lotSum[l.Key.Position] = lotSum[l.Key.Position].Add(l.CurrentQuantity)
	}
	for _, p := range positions {
		s.True(p.OnHand.Equal(p.Allocated.Add(p.Available)), "%s: on_hand %s != allocated %s + available %s", p.Key, p.OnHand, p.Allocated, p.Available)
		s.False(p.OnHand.IsNegative(), "%s on_hand negativo", p.Key)
		s.False(p.Allocated.IsNegative(), "%s allocated negativo", p.Key)
		s.False(p.Available.IsNegative(), "%s available negativo", p.Key)
		if p.Key.ProductID == "MED" {
			s.True(lotSum[p.Key].Equal(p.OnHand), "%s: lotes %s != on_hand %s", p.Key, lotSum[p.Key], p.OnHand)
		}
	}
}

// ── Ledger ──────────────────────────────────────────────────────────────────

func (s *MovementSuite) TestReceipt_UpdatesPositionAndNumbersMovements() {
	first := s.receive(boltA, 10)
	second := s.receive(boltA, 5)

	s.Equal(int64(1), first.Movement.MovementNumber)
	s.Equal(int64(2), second.Movement.MovementNumber)
	s.True(second.Movement.QuantityBefore.Equal(qty(10)))
	s.True(second.Movement.QuantityAfter.Equal(qty(15)))
	s.Nil(second.Movement.Reference, "una recepción sin documento no inventa referencia")

	pos := s.position(boltA)
	s.True(pos.OnHand.Equal(qty(15)))
	s.True(pos.Available.Equal(qty(15)))
	s.Require().NotNil(pos.LastReceivedAt)
	s.True(pos.LastReceivedAt.Equal(s.now))
	s.assertBalances()
}

func (s *MovementSuite) TestReceipt_WeightedAverageCost() {
	c1, c2 := decimal.RequireFromString("10"), decimal.RequireFromString("16")
	s.mustRegister(inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(10), UnitCost: &c1})
	s.mustRegister(inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(5), UnitCost: &c2})

	s.True(s.position(boltA).AverageCost.Equal(qty(12)), "(10*10 + 5*16) / 15 = 12")
}

func (s *MovementSuite) TestGetPosition_NeverMovedIsZero() {
	pos := s.position(boltW2)
	s.True(pos.OnHand.IsZero())
	s.True(pos.Available.IsZero())
	s.Nil(pos.LastMovementAt)
}

func (s *MovementSuite) TestIssue_BeyondAvailableIsRejected() {
	s.receive(boltA, 5)

	_, err := s.issue(boltA, 6)
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.True(s.position(boltA).OnHand.Equal(qty(5)), "el rechazo no modifica la posición")

	n := 0
	seq, err := s.ledger.QueryMovements(s.ctx, repository.MovementFilter{})
	s.Require().NoError(err)
	for range seq {
		n++
	}
	s.Equal(1, n, "un movimiento rechazado no se registra")
}

func (s *MovementSuite) TestValidationAndReferences() {
	cases := []struct {
		name string
		in   inventory.MovementInputDTO
		want error
	}{
		{"cantidad cero", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01"}, domain.ErrValidation},
		{"tipo desconocido", inventory.MovementInputDTO{Type: "gift", ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrValidation},
		{"traslado sin destino", inventory.MovementInputDTO{Type: entity.MovementTransfer, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrValidation},
		{"ajuste sin dirección", inventory.MovementInputDTO{Type: entity.MovementAdjustment, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrValidation},
		{"producto inexistente", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "NOPE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrReferenceNotFound},
		{"producto archivado", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "OLD", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrReferenceNotFound},
		{"ubicación archivada", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "Z-99", Quantity: qty(1)}, domain.ErrReferenceNotFound},
		{"ubicación de otra bodega", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W2", LocationID: "A-01", Quantity: qty(1)}, domain.ErrReferenceNotFound},
		{"lote sin número", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "MED", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1)}, domain.ErrValidation},
		{"seriales incompletos", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(2), SerialNumbers: []string{"S1"}}, domain.ErrValidation},
		{"serial repetido", inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(2), SerialNumbers: []string{"S1", "S1"}}, domain.ErrValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.register(tc.in)
			s.ErrorIs(err, tc.want)
		})
	}
}

// ── Concurrencia ────────────────────────────────────────────────────────────

func (s *MovementSuite) TestConcurrentIssues_NeverOversell() {
	s.receive(boltA, 10)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.issue(boltA, 3)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	s.Equal(3, succeeded, "solo caben tres salidas de 3 en 10")
	for _, err := range errs {
		s.ErrorIs(err, domain.ErrInsufficientStock)
	}
	s.True(s.position(boltA).OnHand.Equal(qty(1)))
	s.assertBalances()
}

func (s *MovementSuite) TestConcurrentIssues_TwoCompetingForTheSameStock() {
	s.receive(boltA, 10)

	results := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := s.issue(boltA, 6)
			results <- err
		}()
	}
	errA, errB := <-results, <-results

	s.True((errA == nil) != (errB == nil), "exactamente una salida debe aplicarse")
	failed := errA
	if failed == nil {
		failed = errB
	}
	s.ErrorIs(failed, domain.ErrInsufficientStock)
	s.True(s.position(boltA).OnHand.Equal(qty(4)))
}

// ── Traslados ───────────────────────────────────────────────────────────────

func (s *MovementSuite) TestTransfer_MovesBothSidesTogether() {
	s.receive(boltA, 10)

	res := s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W2", ToLocationID: "C-01", Quantity: qty(4),
	})
	s.Require().Len(res.Movement.Lines, 2)
	s.IsType(entity.TransferRef{}, res.Movement.Reference)
	s.Equal(entity.LineDebit, res.Movement.Lines[0].Role)
	s.Equal(entity.LineCredit, res.Movement.Lines[1].Role)

	s.True(s.position(boltA).OnHand.Equal(qty(6)))
	s.True(s.position(boltW2).OnHand.Equal(qty(4)))
	s.assertBalances()
}

func (s *MovementSuite) TestTransfer_FailureChangesNeitherSide() {
	s.receive(boltA, 3)

	_, err := s.register(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W2", ToLocationID: "C-01", Quantity: qty(4),
	})
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.True(s.position(boltA).OnHand.Equal(qty(3)))
	s.True(s.position(boltW2).OnHand.IsZero())
}

func (s *MovementSuite) TestTransfer_LotFailureAfterPositionsRollsBack() {
	s.receiveLot(medA, "L1", 10, day(2025, 6, 1))

	// las posiciones alcanzan, pero el lote pedido no existe en el origen
	_, err := s.register(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "MED", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W1", ToLocationID: "B-01", Quantity: qty(4), LotNumber: "NOPE",
	})
	s.ErrorIs(err, domain.ErrReferenceNotFound)
	s.True(s.position(medA).OnHand.Equal(qty(10)))
	s.True(s.position(medB).OnHand.IsZero())
	s.assertBalances()
}

func (s *MovementSuite) TestTransfer_LotKeepsExpiryAtDestination() {
	s.receiveLot(medA, "L1", 10, day(2025, 6, 1))

	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "MED", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W1", ToLocationID: "B-01", Quantity: qty(4),
	})
	moved := s.lot(medB, "L1")
	s.True(moved.CurrentQuantity.Equal(qty(4)))
	s.Require().NotNil(moved.ExpiryDate)
	s.True(moved.ExpiryDate.Equal(*day(2025, 6, 1)))
	s.True(s.lot(medA, "L1").CurrentQuantity.Equal(qty(6)))
	s.assertBalances()
}

// ── Lotes ───────────────────────────────────────────────────────────────────

func (s *MovementSuite) TestIssue_ConsumesEarliestExpiryFirst() {
	s.receiveLot(medA, "L1", 100, day(2025, 1, 1))
	s.receiveLot(medA, "L2", 100, day(2025, 6, 1))

	res, err := s.issue(medA, 150)
	s.Require().NoError(err)

	s.Require().Len(res.Movement.Lots, 2)
	s.Equal("L1", res.Movement.Lots[0].Lot.LotNumber)
	s.True(res.Movement.Lots[0].Quantity.Equal(qty(-100)))
	s.Equal("L2", res.Movement.Lots[1].Lot.LotNumber)
	s.True(res.Movement.Lots[1].Quantity.Equal(qty(-50)))

	l1, l2 := s.lot(medA, "L1"), s.lot(medA, "L2")
	s.True(l1.CurrentQuantity.IsZero())
	s.Equal(entity.LotConsumed, l1.Status)
	s.True(l2.CurrentQuantity.Equal(qty(50)))
	s.assertBalances()
}

func (s *MovementSuite) TestIssue_ExpiredLotIsNotAllocated() {
	s.receiveLot(medA, "L1", 100, day(2025, 1, 1))
	s.receiveLot(medA, "L2", 100, day(2025, 6, 1))
	s.now = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.issue(medA, 150)
	s.ErrorIs(err, domain.ErrInsufficientLotStock, "solo L2 es asignable")

	res, err := s.issue(medA, 50)
	s.Require().NoError(err)
	s.Require().Len(res.Movement.Lots, 1)
	s.Equal("L2", res.Movement.Lots[0].Lot.LotNumber)
	s.True(s.lot(medA, "L1").CurrentQuantity.Equal(qty(100)), "el lote vencido no se toca")
	s.assertBalances()
}

func (s *MovementSuite) TestReceipt_DefaultsExpiryFromShelfLife() {
	s.receiveLot(medA, "L1", 5, nil)
	l := s.lot(medA, "L1")
	s.Require().NotNil(l.ExpiryDate)
	s.True(l.ExpiryDate.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
	s.Equal(entity.QualityApproved, l.QualityStatus)
}

func (s *MovementSuite) TestCycleCount_SetsCountedQuantity() {
	s.receive(boltA, 10)

	res := s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementCycleCount, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(7),
	})
	s.Equal(entity.LineDebit, res.Movement.Lines[0].Role)
	s.True(res.Movement.Lines[0].OnHandDelta.Equal(qty(-3)))
	s.True(s.position(boltA).OnHand.Equal(qty(7)))

	s.receiveLot(medA, "L1", 10, day(2025, 6, 1))
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementCycleCount, ProductID: "MED", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(12), LotNumber: "L1",
	})
	s.True(s.lot(medA, "L1").CurrentQuantity.Equal(qty(12)))
	s.True(s.position(medA).OnHand.Equal(qty(12)))
	s.assertBalances()
}

func (s *MovementSuite) TestChangeLotStatus_RecallScrapsEveryPlacement() {
	s.receiveLot(medA, "R1", 30, day(2025, 6, 1))
	s.receiveLot(medB, "R1", 20, nil)
	s.receiveLot(medA, "OK", 5, day(2025, 6, 1))

	results, err := s.uc.ChangeLotStatus(s.ctx, inventory.LotStatusInputDTO{
		ProductID: "MED", LotNumber: "R1", Status: entity.LotRecalled, Actor: "calidad",
	})
	s.Require().NoError(err)
	s.Len(results, 2)
	for _, r := range results {
		s.Equal(entity.MovementScrap, r.Movement.Type)
	}
	s.Equal(entity.LotRecalled, s.lot(medA, "R1").Status)
	s.Equal(entity.LotRecalled, s.lot(medB, "R1").Status)
	s.True(s.position(medA).OnHand.Equal(qty(5)))
	s.True(s.position(medB).OnHand.IsZero())
	s.assertBalances()

	_, err = s.register(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: "MED", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), LotNumber: "R1",
	})
	s.ErrorIs(err, domain.ErrValidation, "un lote retirado no admite ingresos")
}

func (s *MovementSuite) TestChangeLotStatus_RecallReleasesReservationsItCannotCover() {
	s.receiveLot(medA, "L1", 10, day(2025, 6, 1))
	_, err := s.uc.AllocateStock(s.ctx, inventory.AllocationInputDTO{ProductID: "MED", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(4)})
	s.Require().NoError(err)

	results, err := s.uc.ChangeLotStatus(s.ctx, inventory.LotStatusInputDTO{ProductID: "MED", LotNumber: "L1", Status: entity.LotRecalled})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Movement.Lines[0].AllocatedDelta.Equal(qty(-4)))
	pos := s.position(medA)
	s.True(pos.OnHand.IsZero())
	s.True(pos.Allocated.IsZero())
	s.True(pos.Available.IsZero())

	// con otro lote en la posición solo se libera lo que ese lote no cubre
	s.receiveLot(medB, "L2", 10, day(2025, 6, 1))
	s.receiveLot(medB, "L3", 5, day(2025, 7, 1))
	_, err = s.uc.AllocateStock(s.ctx, inventory.AllocationInputDTO{ProductID: "MED", WarehouseID: "W1", LocationID: "B-01", Quantity: qty(8)})
	s.Require().NoError(err)

	results, err = s.uc.ChangeLotStatus(s.ctx, inventory.LotStatusInputDTO{ProductID: "MED", LotNumber: "L2", Status: entity.LotExpired})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Movement.Lines[0].AllocatedDelta.Equal(qty(-3)))
	pos = s.position(medB)
	s.True(pos.OnHand.Equal(qty(5)))
	s.True(pos.Allocated.Equal(qty(5)))
	s.True(pos.Available.IsZero())
	s.assertBalances()
}

// ── Seriales ────────────────────────────────────────────────────────────────

func (s *MovementSuite) TestSerials_DuplicateWhileInStock() {
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(2), SerialNumbers: []string{"S1", "S2"},
	})

	_, err := s.register(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: "PHONE", WarehouseID: "W1", LocationID: "B-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	})
	s.ErrorIs(err, domain.ErrDuplicateSerial)
	s.True(s.position(phoneA).OnHand.Equal(qty(2)))
}

func (s *MovementSuite) TestSerials_SaleThenReturn() {
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementReceipt, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	})
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementIssue, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
		Reference: entity.SalesRef{OrderID: "SO-1"},
	})

	u, err := s.store.Serials().Get(s.ctx, "PHONE", "S1")
	s.Require().NoError(err)
	s.Equal(entity.SerialSold, u.Status)
	s.Require().NotNil(u.WarrantyEnd)
	s.True(u.WarrantyEnd.Equal(s.now.AddDate(0, 0, 365)))

	_, err = s.register(inventory.MovementInputDTO{
		Type: entity.MovementIssue, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	})
	s.ErrorIs(err, domain.ErrInvalidSerialState)

	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementReturn, ProductID: "PHONE", WarehouseID: "W1", LocationID: "B-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	})
	u, err = s.store.Serials().Get(s.ctx, "PHONE", "S1")
	s.Require().NoError(err)
	s.Equal(entity.SerialInStock, u.Status)
	s.Equal("B-01", u.LocationID)
	s.Equal(entity.SerialReturned, u.History[len(u.History)-2].To)
	for _, ev := range u.History {
		s.NotZero(ev.MovementNumber, "cada evento queda enlazado a su movimiento")
	}
}

func (s *MovementSuite) serial(sn string) *entity.SerialUnit {
	u, err := s.store.Serials().Get(s.ctx, "PHONE", sn)
	s.Require().NoError(err)
	s.Require().NotNil(u, "serial %s", sn)
	return u
}

func (s *MovementSuite) phones(typ entity.MovementType, key entity.PositionKey, sns ...string) (*inventory.MovementResult, error) {
	return s.register(inventory.MovementInputDTO{
		Type: typ, ProductID: "PHONE", WarehouseID: key.WarehouseID, LocationID: key.LocationID,
		Quantity: qty(int64(len(sns))), SerialNumbers: sns,
	})
}

func (s *MovementSuite) TestSerials_ScrappedUnitIsReactivatedOnReceipt() {
	_, err := s.phones(entity.MovementReceipt, phoneA, "SN-9")
	s.Require().NoError(err)
	_, err = s.phones(entity.MovementScrap, phoneA, "SN-9")
	s.Require().NoError(err)
	s.Equal(entity.SerialScrapped, s.serial("SN-9").Status)

	res, err := s.phones(entity.MovementReceipt, phoneB, "SN-9")
	s.Require().NoError(err)

	u := s.serial("SN-9")
	s.Equal(entity.SerialInStock, u.Status)
	s.Equal("B-01", u.LocationID)
	s.Require().Len(u.History, 4, "el historial anterior se conserva")
	s.Equal(entity.SerialScrapped, u.History[1].To)
	s.Equal(entity.SerialReturned, u.History[2].To)
	s.Equal(res.Movement.MovementNumber, u.History[3].MovementNumber)
	s.True(s.position(phoneA).OnHand.IsZero())
	s.True(s.position(phoneB).OnHand.Equal(qty(1)))

	// una devolución exige que la unidad haya salido al cliente
	_, err = s.phones(entity.MovementReceipt, phoneA, "SN-8")
	s.Require().NoError(err)
	_, err = s.phones(entity.MovementScrap, phoneA, "SN-8")
	s.Require().NoError(err)
	_, err = s.phones(entity.MovementReturn, phoneA, "SN-8")
	s.ErrorIs(err, domain.ErrInvalidSerialState)
	s.Equal(entity.SerialScrapped, s.serial("SN-8").Status)
}

func (s *MovementSuite) TestSerials_ReceiptReactivatesShippedAndSoldUnits() {
	_, err := s.phones(entity.MovementReceipt, phoneA, "S1", "S2")
	s.Require().NoError(err)
	_, err = s.phones(entity.MovementIssue, phoneA, "S1")
	s.Require().NoError(err)
	s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementIssue, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S2"},
		Reference: entity.SalesRef{OrderID: "SO-7"},
	})
	s.Equal(entity.SerialShipped, s.serial("S1").Status)
	s.Equal(entity.SerialSold, s.serial("S2").Status)

	_, err = s.phones(entity.MovementReceipt, phoneB, "S1", "S2")
	s.Require().NoError(err)
	for _, sn := range []string{"S1", "S2"} {
		u := s.serial(sn)
		s.Equal(entity.SerialInStock, u.Status, sn)
		s.Equal("B-01", u.LocationID, sn)
		s.Equal(entity.SerialReturned, u.History[len(u.History)-2].To, sn)
	}
	s.True(s.position(phoneB).OnHand.Equal(qty(2)))
	s.assertBalances()
}

func (s *MovementSuite) TestSerials_TransferMovesUnitsAndReservation() {
	_, err := s.phones(entity.MovementReceipt, phoneA, "S1", "S2")
	s.Require().NoError(err)
	_, err = s.uc.AllocateStock(s.ctx, inventory.AllocationInputDTO{
		ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S2"},
	})
	s.Require().NoError(err)

	res := s.mustRegister(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W2", ToLocationID: "C-01", Quantity: qty(2), SerialNumbers: []string{"S1", "S2"},
	})

	for sn, status := range map[string]entity.SerialStatus{"S1": entity.SerialInStock, "S2": entity.SerialAllocated} {
		u := s.serial(sn)
		s.Equal(status, u.Status, sn)
		s.Equal("W2", u.WarehouseID, sn)
		s.Equal("C-01", u.LocationID, sn)
		last := u.History[len(u.History)-1]
		s.Equal(status, last.From, sn)
		s.Equal(status, last.To, sn)
		s.Equal("C-01", last.LocationID, sn)
		s.Equal(res.Movement.MovementNumber, last.MovementNumber, sn)
	}
	src, dst := s.position(phoneA), s.position(phoneW2)
	s.True(src.OnHand.IsZero())
	s.True(src.Allocated.IsZero())
	s.True(dst.OnHand.Equal(qty(2)))
	s.True(dst.Allocated.Equal(qty(1)), "la reserva viaja con la unidad")
	s.assertBalances()
}

func (s *MovementSuite) TestSerials_NonMovableUnitIsRejected() {
	_, err := s.phones(entity.MovementReceipt, phoneA, "S1", "S2")
	s.Require().NoError(err)
	_, err = s.phones(entity.MovementIssue, phoneA, "S1")
	s.Require().NoError(err)

	_, err = s.register(inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01",
		ToWarehouseID: "W1", ToLocationID: "B-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	})
	s.ErrorIs(err, domain.ErrInvalidSerialState, "una unidad enviada no se mueve")
	_, err = s.phones(entity.MovementIssue, phoneA, "S1")
	s.ErrorIs(err, domain.ErrInvalidSerialState, "ni se vuelve a enviar")
	_, err = s.phones(entity.MovementIssue, phoneB, "S2")
	s.ErrorIs(err, domain.ErrInvalidSerialState, "la unidad no está en la ubicación indicada")

	s.Equal("A-01", s.serial("S1").LocationID)
	s.Equal(entity.SerialInStock, s.serial("S2").Status)
	s.True(s.position(phoneA).OnHand.Equal(qty(1)))
	s.True(s.position(phoneB).OnHand.IsZero())
}

func (s *MovementSuite) TestSerials_ScrapOfAllocatedUnitRequiresRelease() {
	_, err := s.phones(entity.MovementReceipt, phoneA, "S1")
	s.Require().NoError(err)
	reservation := inventory.AllocationInputDTO{
		ProductID: "PHONE", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(1), SerialNumbers: []string{"S1"},
	}
	_, err = s.uc.AllocateStock(s.ctx, reservation)
	s.Require().NoError(err)

	_, err = s.phones(entity.MovementScrap, phoneA, "S1")
	s.ErrorIs(err, domain.ErrInvalidSerialState)
	s.Equal(entity.SerialAllocated, s.serial("S1").Status)
	pos := s.position(phoneA)
	s.True(pos.OnHand.Equal(qty(1)))
	s.True(pos.Allocated.Equal(qty(1)))

	_, err = s.uc.ReleaseStock(s.ctx, reservation)
	s.Require().NoError(err)
	u := s.serial("S1")
	s.Equal(entity.SerialInStock, u.Status)
	n := len(u.History)
	s.Equal(entity.SerialCauseAllocation, u.History[n-3].Cause)
	for _, ev := range u.History[n-2:] {
		s.Equal(entity.SerialCauseRelease, ev.Cause, "la liberación no se confunde con una devolución")
		s.Zero(ev.MovementNumber)
	}

	_, err = s.phones(entity.MovementScrap, phoneA, "S1")
	s.Require().NoError(err)
	s.Equal(entity.SerialScrapped, s.serial("S1").Status)
	s.True(s.position(phoneA).OnHand.IsZero())
	s.assertBalances()
}

// ── Reservas ────────────────────────────────────────────────────────────────

func (s *MovementSuite) TestAllocation_ReducesAvailableOnly() {
	s.receive(boltA, 10)
	in := inventory.AllocationInputDTO{ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(4)}

	pos, err := s.uc.AllocateStock(s.ctx, in)
	s.Require().NoError(err)
	s.True(pos.OnHand.Equal(qty(10)))
	s.True(pos.Allocated.Equal(qty(4)))
	s.True(pos.Available.Equal(qty(6)))

	_, err = s.issue(boltA, 8)
	s.ErrorIs(err, domain.ErrInsufficientStock, "lo reservado no está disponible")

	in.Quantity = qty(7)
	_, err = s.uc.AllocateStock(s.ctx, in)
	s.ErrorIs(err, domain.ErrInsufficientStock)

	in.Quantity = qty(4)
	pos, err = s.uc.ReleaseStock(s.ctx, in)
	s.Require().NoError(err)
	s.True(pos.Allocated.IsZero())
	s.True(pos.Available.Equal(qty(10)))
	s.assertBalances()
}

// ── Reversos ────────────────────────────────────────────────────────────────

func (s *MovementSuite) TestReverse_RestoresPriorState() {
	cost := qty(5)
	s.mustRegister(inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(10), UnitCost: &cost})
	before := s.position(boltA)

	issued, err := s.issue(boltA, 3)
	s.Require().NoError(err)
	rev, err := s.uc.ReverseMovement(s.ctx, issued.Movement.MovementNumber, "supervisor", "error")
	s.Require().NoError(err)
	s.Equal(issued.Movement.MovementNumber, rev.Movement.ReversalOf)
	s.Equal(entity.LineCredit, rev.Movement.Lines[0].Role)

	after := s.position(boltA)
	s.True(before.OnHand.Equal(after.OnHand))
	s.True(before.Allocated.Equal(after.Allocated))
	s.True(before.Available.Equal(after.Available))
	s.True(before.AverageCost.Equal(after.AverageCost))

	orig, err := s.ledger.GetMovement(s.ctx, issued.Movement.MovementNumber)
	s.Require().NoError(err)
	s.True(orig.Quantity.Equal(qty(3)), "el original no se modifica")
}

func (s *MovementSuite) TestReverse_OnlyOnce() {
	res := s.receive(boltA, 10)

	_, err := s.uc.ReverseMovement(s.ctx, res.Movement.MovementNumber, "", "")
	s.Require().NoError(err)
	_, err = s.uc.ReverseMovement(s.ctx, res.Movement.MovementNumber, "", "")
	s.ErrorIs(err, domain.ErrAlreadyReversed)

	_, err = s.uc.ReverseMovement(s.ctx, 2, "", "")
	s.ErrorIs(err, domain.ErrValidation, "un reverso no se reversa")
	_, err = s.uc.ReverseMovement(s.ctx, 99, "", "")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *MovementSuite) TestReverse_ConcurrentAttemptsApplyOnce() {
	res := s.receive(boltA, 10)

	errs := make(chan error, 4)
	for range 4 {
		go func() {
			_, err := s.uc.ReverseMovement(s.ctx, res.Movement.MovementNumber, "", "")
			errs <- err
		}()
	}
	ok := 0
	for range 4 {
		if err := <-errs; err == nil {
			ok++
		} else {
			s.ErrorIs(err, domain.ErrAlreadyReversed)
		}
	}
	s.Equal(1, ok)
	s.True(s.position(boltA).OnHand.IsZero())
}

func (s *MovementSuite) TestReverse_LotIssueRestoresLots() {
	s.receiveLot(medA, "L1", 100, day(2025, 1, 1))
	s.receiveLot(medA, "L2", 100, day(2025, 6, 1))
	res, err := s.issue(medA, 150)
	s.Require().NoError(err)

	_, err = s.uc.ReverseMovement(s.ctx, res.Movement.MovementNumber, "", "")
	s.Require().NoError(err)
	l1 := s.lot(medA, "L1")
	s.True(l1.CurrentQuantity.Equal(qty(100)))
	s.Equal(entity.LotActive, l1.Status)
	s.True(s.lot(medA, "L2").CurrentQuantity.Equal(qty(100)))
	s.assertBalances()
}

// ── Consultas ───────────────────────────────────────────────────────────────

func (s *MovementSuite) TestQueryMovements_FiltersAndStopsEarly() {
	s.receive(boltA, 10)
	s.receiveLot(medA, "L1", 5, day(2025, 6, 1))
	s.receive(boltW2, 3)
	_, err := s.issue(boltA, 2)
	s.Require().NoError(err)

	var numbers []int64
	seq, err := s.ledger.QueryMovements(s.ctx, repository.MovementFilter{ProductID: "BOLT"})
	s.Require().NoError(err)
	for m, err := range seq {
		s.Require().NoError(err)
		numbers = append(numbers, m.MovementNumber)
	}
	s.Equal([]int64{1, 3, 4}, numbers)

	seq, err = s.ledger.QueryMovements(s.ctx, repository.MovementFilter{})
	s.Require().NoError(err)
	seen := 0
	for range seq {
		seen++
		if seen == 2 {
			break
		}
	}
	s.Equal(2, seen)

	seq, err = s.ledger.QueryMovements(s.ctx, repository.MovementFilter{Type: entity.MovementIssue, After: 1})
	s.Require().NoError(err)
	numbers = numbers[:0]
	for m := range seq {
		numbers = append(numbers, m.MovementNumber)
	}
	s.Equal([]int64{4}, numbers)
}

func (s *MovementSuite) TestWarehouseUtilization_DerivedOnRead() {
	s.receive(boltA, 10)
	s.receiveLot(medB, "L1", 5, day(2025, 6, 1))
	s.receive(boltW2, 3)

	u, err := s.ledger.WarehouseUtilization(s.ctx, "W1")
	s.Require().NoError(err)
	s.Equal(2, u.Positions)
	s.Equal(2, u.Products)
	s.True(u.OnHand.Equal(qty(15)))
}

// ── Archivo y reposición ────────────────────────────────────────────────────

type capturedObject struct {
	key, contentType string
	body             []byte
}

type fakeObjectStore struct{ puts []capturedObject }

func (f *fakeObjectStore) PutObject(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(raw)) != size {
		return errors.New("size mismatch")
	}
	f.puts = append(f.puts, capturedObject{key: key, contentType: contentType, body: raw})
	return nil
}

func (s *MovementSuite) TestArchiveDay_WritesNDJSON() {
	s.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s.receive(boltA, 10)
	s.now = s.now.Add(3 * time.Hour)
	_, err := s.issue(boltA, 4)
	s.Require().NoError(err)
	s.now = time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	s.receive(boltA, 1)

	store := &fakeObjectStore{}
	uc := inventory.NewArchiveMovementsUseCase(s.store.Movements(), store, nil)

	key, n, err := uc.ArchiveDay(s.ctx, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal("movements/2026/03/10.ndjson", key)
	s.Equal(2, n)
	s.Require().Len(store.puts, 1)
	s.Equal("application/x-ndjson", store.puts[0].contentType)

	var lines []dto.MovementResponse
	sc := bufio.NewScanner(bytes.NewReader(store.puts[0].body))
	for sc.Scan() {
		var m dto.MovementResponse
		s.Require().NoError(json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	s.Require().Len(lines, 2)
	s.Equal(int64(1), lines[0].MovementNumber)
	s.Equal("issue", lines[1].Type)

	_, n, err = uc.ArchiveDay(s.ctx, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Zero(n)
	s.Len(store.puts, 1, "un día vacío no genera objeto")
}

func (s *MovementSuite) TestReplenishment_SuggestsUpToMaxStock() {
	cost := qty(2)
	s.mustRegister(inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(4), UnitCost: &cost})

	uc := inventory.NewReplenishmentUseCase(s.catalog.Products(), s.store.Positions())
	list, err := uc.GenerateReplenishmentList(s.ctx, "W1")
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("BOLT", list[0].ProductID)
	s.True(list[0].SuggestedOrderQty.Equal(qty(96)))
	s.True(list[0].EstimatedOrderCost.Equal(qty(192)))
	s.Equal(1, list[0].Priority)

	s.receive(boltA, 20)
	list, err = uc.GenerateReplenishmentList(s.ctx, "W1")
	s.Require().NoError(err)
	s.Empty(list)

	_, err = uc.GenerateReplenishmentList(s.ctx, "")
	s.ErrorIs(err, domain.ErrValidation)
}

// ── Caché y notificaciones ──────────────────────────────────────────────────

type recordingNotifier struct {
	mu     sync.Mutex
	events []entity.CommitEvent
}

func (n *recordingNotifier) Notify(ev entity.CommitEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type recordingCache struct {
	invalidated []entity.PositionKey
}

func (c *recordingCache) Get(context.Context, entity.PositionKey) (*entity.Position, uint64, bool) {
	return nil, 0, false
}
func (c *recordingCache) Set(context.Context, *entity.Position, uint64) {}
func (c *recordingCache) Invalidate(_ context.Context, keys ...entity.PositionKey) {
	c.invalidated = append(c.invalidated, keys...)
}

func TestRegisterMovement_PublishesAfterCommit(t *testing.T) {
	catalog := memory.NewCatalog()
	catalog.PutProduct(entity.Product{ID: "BOLT", Status: entity.LifecycleActive})
	catalog.PutWarehouse(entity.Warehouse{ID: "W1", Status: entity.LifecycleActive})
	catalog.PutWarehouse(entity.Warehouse{ID: "W2", Status: entity.LifecycleActive})
	catalog.PutLocation(entity.Location{ID: "A-01", WarehouseID: "W1", Status: entity.LifecycleActive})
	catalog.PutLocation(entity.Location{ID: "C-01", WarehouseID: "W2", Status: entity.LifecycleActive})
	store := memory.NewStore()
	notifier, cache := &recordingNotifier{}, &recordingCache{}
	uc := inventory.NewRegisterMovementUseCase(memory.NewTxRunner(store, time.Second), catalog.Products(), catalog.Warehouses(),
		inventory.WithNotifier(notifier), inventory.WithPositionCache(cache))
	ctx := context.Background()

	_, err := uc.RegisterMovement(ctx, inventory.MovementInputDTO{Type: entity.MovementReceipt, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(5)})
	require.NoError(t, err)
	_, err = uc.RegisterMovement(ctx, inventory.MovementInputDTO{
		Type: entity.MovementTransfer, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", ToWarehouseID: "W2", ToLocationID: "C-01", Quantity: qty(2),
	})
	require.NoError(t, err)
	_, err = uc.RegisterMovement(ctx, inventory.MovementInputDTO{Type: entity.MovementIssue, ProductID: "BOLT", WarehouseID: "W1", LocationID: "A-01", Quantity: qty(50)})
	require.Error(t, err)

	require.Len(t, notifier.events, 2, "un movimiento rechazado no publica")
	assert.Equal(t, int64(2), notifier.events[1].MovementNumber)
	assert.ElementsMatch(t, []entity.ProductWarehouse{{ProductID: "BOLT", WarehouseID: "W1"}, {ProductID: "BOLT", WarehouseID: "W2"}}, notifier.events[1].Pairs)
	assert.Contains(t, cache.invalidated, boltW2)
}
