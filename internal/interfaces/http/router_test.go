package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/alerts"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/stock-ledger/internal/interfaces/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type testEnv struct {
	app    *fiber.App
	engine *alerts.Engine
}

// buildTestApp arma la API completa sobre el store en memoria con un producto P1
// (punto de reorden 10), el producto archivado P9 y la bodega W1 con ubicaciones A-01 y B-01.
func buildTestApp(t *testing.T) *testEnv {
	t.Helper()
	catalog := memory.NewCatalog()
	catalog.PutProduct(entity.Product{
		ID:           "P1",
		SKU:          "SKU-1",
		Name:         "Tornillo",
		Status:       entity.LifecycleActive,
		ReorderPoint: decimal.NewNullDecimal(decimal.NewFromInt(10)),
	})
	catalog.PutProduct(entity.Product{ID: "P9", SKU: "SKU-9", Name: "Descontinuado", Status: entity.LifecycleArchived})
	catalog.PutWarehouse(entity.Warehouse{ID: "W1", Code: "W1", Name: "Principal", Status: entity.LifecycleActive})
	catalog.PutLocation(entity.Location{ID: "A-01", WarehouseID: "W1", Code: "A-01", Status: entity.LifecycleActive})
	catalog.PutLocation(entity.Location{ID: "B-01", WarehouseID: "W1", Code: "B-01", Status: entity.LifecycleActive})

	store := memory.NewStore()
	runner := memory.NewTxRunner(store, 200*time.Millisecond)
	engine := alerts.NewEngine(memory.NewAlertRepository(), catalog.Products(), store.Positions(), store.Lots(), alerts.DefaultConfig(), nil)
	uc := inventory.NewRegisterMovementUseCase(runner, catalog.Products(), catalog.Warehouses())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	apphttp.Router(app, apphttp.RouterDeps{
		RegisterMovement: uc,
		Ledger:           inventory.NewLedgerService(store.Positions(), store.Movements(), nil, nil),
		Lots:             inventory.NewLotService(runner, store.Lots(), nil),
		Serials:          inventory.NewSerialRegistry(runner, store.Serials(), nil),
		Replenishment:    inventory.NewReplenishmentUseCase(catalog.Products(), store.Positions()),
		Alerts:           engine,
		Products:         usecase.NewProductUseCase(catalog.Products()),
		Warehouses:       usecase.NewWarehouseUseCase(catalog.Warehouses()),
	})
	return &testEnv{app: app, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(apphttp.HeaderActor, "bodeguero")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func receipt(qty int64) dto.RegisterMovementRequest {
	return dto.RegisterMovementRequest{
		Type:        string(entity.MovementReceipt),
		ProductID:   "P1",
		WarehouseID: "W1",
		LocationID:  "A-01",
		Quantity:    decimal.NewFromInt(qty),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Movimientos
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_Created(t *testing.T) {
	env := buildTestApp(t)

	resp := env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(25))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	out := decode[dto.MovementResultResponse](t, resp)
	assert.Equal(t, int64(1), out.Movement.MovementNumber)
	assert.Equal(t, "bodeguero", out.Movement.Actor, "X-Actor tiene prioridad sobre el body")
	assert.True(t, out.Movement.QuantityBefore.IsZero())
	assert.True(t, out.Movement.QuantityAfter.Equal(decimal.NewFromInt(25)))
	require.Len(t, out.Positions, 1)
	assert.True(t, out.Positions[0].Available.Equal(decimal.NewFromInt(25)))
}

func TestRegisterMovement_ValidationIs400(t *testing.T) {
	env := buildTestApp(t)

	req := receipt(0)
	resp := env.do(t, fiber.MethodPost, "/api/v1/movements", req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decode[dto.ErrorResponse](t, resp).Code)

	bad := httptest.NewRequest(fiber.MethodPost, "/api/v1/movements", bytes.NewBufferString("{"))
	bad.Header.Set("Content-Type", "application/json")
	raw, err := env.app.Test(bad, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, raw.StatusCode)
}

func TestRegisterMovement_UnknownReferenceIs422(t *testing.T) {
	env := buildTestApp(t)

	req := receipt(5)
	req.ProductID = "NOPE"
	resp := env.do(t, fiber.MethodPost, "/api/v1/movements", req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "REFERENCE_NOT_FOUND", decode[dto.ErrorResponse](t, resp).Code)
}

func TestRegisterMovement_InsufficientStockIs409(t *testing.T) {
	env := buildTestApp(t)
	require.Equal(t, fiber.StatusCreated, env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(3)).StatusCode)

	issue := receipt(5)
	issue.Type = string(entity.MovementIssue)
	resp := env.do(t, fiber.MethodPost, "/api/v1/movements", issue)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[dto.ErrorResponse](t, resp).Code)

	pos := decode[dto.PositionResponse](t, env.do(t, fiber.MethodGet, "/api/v1/positions/lookup?product_id=P1&warehouse_id=W1&location_id=A-01", nil))
	assert.True(t, pos.OnHand.Equal(decimal.NewFromInt(3)), "el rechazo no debe alterar la posición")
}

func TestReverseMovement_OnlyOnce(t *testing.T) {
	env := buildTestApp(t)
	require.Equal(t, fiber.StatusCreated, env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(8)).StatusCode)

	resp := env.do(t, fiber.MethodPost, "/api/v1/movements/1/reverse", dto.ReverseMovementRequest{Notes: "error de digitación"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	out := decode[dto.MovementResultResponse](t, resp)
	assert.Equal(t, int64(1), out.Movement.ReversalOf)
	assert.True(t, out.Movement.QuantityAfter.IsZero())

	again := env.do(t, fiber.MethodPost, "/api/v1/movements/1/reverse", nil)
	assert.Equal(t, fiber.StatusConflict, again.StatusCode)
	assert.Equal(t, "ALREADY_REVERSED", decode[dto.ErrorResponse](t, again).Code)

	missing := env.do(t, fiber.MethodPost, "/api/v1/movements/99/reverse", nil)
	assert.Equal(t, fiber.StatusNotFound, missing.StatusCode)
}

func TestQueryMovements_PagesWithCursor(t *testing.T) {
	env := buildTestApp(t)
	for i := 1; i <= 5; i++ {
		require.Equal(t, fiber.StatusCreated, env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(int64(i))).StatusCode)
	}

	first := decode[dto.MovementListResponse](t, env.do(t, fiber.MethodGet, "/api/v1/movements?product_id=P1&limit=2", nil))
	require.Len(t, first.Items, 2)
	assert.Equal(t, int64(1), first.Items[0].MovementNumber)
	assert.Equal(t, int64(2), first.NextAfter)

	var numbers []int64
	after := int64(0)
	for {
		page := decode[dto.MovementListResponse](t, env.do(t, fiber.MethodGet, fmt.Sprintf("/api/v1/movements?limit=2&after=%d", after), nil))
		for _, m := range page.Items {
			numbers = append(numbers, m.MovementNumber)
		}
		if page.NextAfter == 0 {
			break
		}
		after = page.NextAfter
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, numbers)

	resp := env.do(t, fiber.MethodGet, "/api/v1/movements?limit=5000", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, fiber.MethodGet, "/api/v1/movements?from=ayer", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Posiciones
// ──────────────────────────────────────────────────────────────────────────────

func TestGetPosition_NeverMovedIsZero(t *testing.T) {
	env := buildTestApp(t)

	resp := env.do(t, fiber.MethodGet, "/api/v1/positions/lookup?product_id=P1&warehouse_id=W1&location_id=B-01", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	pos := decode[dto.PositionResponse](t, resp)
	assert.True(t, pos.OnHand.IsZero())
	assert.True(t, pos.Available.IsZero())

	resp = env.do(t, fiber.MethodGet, "/api/v1/positions/lookup?product_id=P1", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTransfer_MovesBetweenLocations(t *testing.T) {
	env := buildTestApp(t)
	require.Equal(t, fiber.StatusCreated, env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(10)).StatusCode)

	tr := receipt(4)
	tr.Type = string(entity.MovementTransfer)
	tr.ToWarehouseID = "W1"
	tr.ToLocationID = "B-01"
	resp := env.do(t, fiber.MethodPost, "/api/v1/movements", tr)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Len(t, decode[dto.MovementResultResponse](t, resp).Movement.Lines, 2)

	list := decode[dto.PositionListResponse](t, env.do(t, fiber.MethodGet, "/api/v1/positions?product_id=P1&non_zero=true", nil))
	got := map[string]decimal.Decimal{}
	for _, p := range list.Items {
		got[p.LocationID] = p.OnHand
	}
	assert.True(t, got["A-01"].Equal(decimal.NewFromInt(6)))
	assert.True(t, got["B-01"].Equal(decimal.NewFromInt(4)))

	util := decode[dto.UtilizationResponse](t, env.do(t, fiber.MethodGet, "/api/v1/warehouses/W1/utilization", nil))
	assert.True(t, util.OnHand.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2, util.Positions)
}

// ──────────────────────────────────────────────────────────────────────────────
// Alertas
// ──────────────────────────────────────────────────────────────────────────────

func TestAlerts_AcknowledgeAndResolve(t *testing.T) {
	env := buildTestApp(t)
	require.Equal(t, fiber.StatusCreated, env.do(t, fiber.MethodPost, "/api/v1/movements", receipt(4)).StatusCode)
	require.NoError(t, env.engine.Scan(context.Background()))

	list := decode[dto.AlertListResponse](t, env.do(t, fiber.MethodGet, "/api/v1/alerts?product_id=P1&open=true", nil))
	require.Len(t, list.Items, 1)
	alert := list.Items[0]
	assert.Equal(t, string(entity.AlertLowStock), alert.Type)
	assert.Equal(t, string(entity.AlertActive), alert.Status)

	resp := env.do(t, fiber.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	acked := decode[dto.AlertResponse](t, resp)
	assert.Equal(t, string(entity.AlertAcknowledged), acked.Status)
	assert.Equal(t, "bodeguero", acked.AcknowledgedBy)

	resp = env.do(t, fiber.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "reconocer dos veces no es un error")

	resp = env.do(t, fiber.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, string(entity.AlertResolved), decode[dto.AlertResponse](t, resp).Status)

	resp = env.do(t, fiber.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_ALERT_TRANSITION", decode[dto.ErrorResponse](t, resp).Code)
}

func TestAlerts_UnknownIs404(t *testing.T) {
	env := buildTestApp(t)

	resp := env.do(t, fiber.MethodPost, "/api/v1/alerts/no-existe/acknowledge", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, resp).Code)
}

// ──────────────────────────────────────────────────────────────────────────────
// Catálogo
// ──────────────────────────────────────────────────────────────────────────────

func TestCatalog_ListsActiveProductsByDefault(t *testing.T) {
	env := buildTestApp(t)

	resp := env.do(t, fiber.MethodGet, "/api/v1/products", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := decode[dto.ProductListResponse](t, resp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "P1", list.Items[0].ID)
	assert.Equal(t, 1, list.Page.Total)
	assert.Equal(t, 20, list.Page.Limit)
	require.True(t, list.Items[0].ReorderPoint.Valid)

	resp = env.do(t, fiber.MethodGet, "/api/v1/products?include_archived=true&limit=1&offset=1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list = decode[dto.ProductListResponse](t, resp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "P9", list.Items[0].ID)
	assert.Equal(t, "archived", list.Items[0].Status)
	assert.Equal(t, 2, list.Page.Total)

	resp = env.do(t, fiber.MethodGet, "/api/v1/products?limit=500", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCatalog_GetProductAndWarehouse(t *testing.T) {
	env := buildTestApp(t)

	resp := env.do(t, fiber.MethodGet, "/api/v1/products/P1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "SKU-1", decode[dto.ProductResponse](t, resp).SKU)

	resp = env.do(t, fiber.MethodGet, "/api/v1/products/NOPE", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = env.do(t, fiber.MethodGet, "/api/v1/warehouses", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	warehouses := decode[dto.WarehouseListResponse](t, resp)
	require.Len(t, warehouses.Items, 1)
	assert.Equal(t, "Principal", warehouses.Items[0].Name)

	resp = env.do(t, fiber.MethodGet, "/api/v1/warehouses/W1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", decode[dto.WarehouseResponse](t, resp).Status)
}
