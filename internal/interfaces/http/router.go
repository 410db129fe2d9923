package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/alerts"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	RegisterMovement *inventory.RegisterMovementUseCase
	Ledger           *inventory.LedgerService
	Lots             *inventory.LotService
	Serials          *inventory.SerialRegistry
	Replenishment    *inventory.ReplenishmentUseCase
	Alerts           *alerts.Engine
	Products         *usecase.ProductUseCase
	Warehouses       *usecase.WarehouseUseCase
	Log              *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	api := app.Group("/api/v1", ActorMiddleware(), RequestLogger(log))

	inventoryHandler := NewInventoryHandler(deps.RegisterMovement, deps.Ledger, deps.Replenishment)

	// Movements
	movements := api.Group("/movements")
	movements.Post("/", inventoryHandler.RegisterMovement)
	movements.Get("/", inventoryHandler.QueryMovements)
	movements.Get("/:number", inventoryHandler.GetMovement)
	movements.Post("/:number/reverse", inventoryHandler.ReverseMovement)

	// Positions y reservas
	positions := api.Group("/positions")
	positions.Get("/", inventoryHandler.ListPositions)
	positions.Get("/lookup", inventoryHandler.GetPosition)
	api.Get("/warehouses/:id/utilization", inventoryHandler.WarehouseUtilization)
	api.Post("/allocations", inventoryHandler.Allocate)
	api.Post("/allocations/release", inventoryHandler.Release)
	api.Get("/replenishment", inventoryHandler.GetReplenishmentList)

	// Catálogo (solo lectura)
	catalogHandler := NewCatalogHandler(deps.Products, deps.Warehouses)
	api.Get("/products", catalogHandler.ListProducts)
	api.Get("/products/:id", catalogHandler.GetProduct)
	api.Get("/warehouses", catalogHandler.ListWarehouses)
	api.Get("/warehouses/:id", catalogHandler.GetWarehouse)

	// Lots
	lotHandler := NewLotHandler(deps.Lots, deps.RegisterMovement)
	api.Get("/lots", lotHandler.List)
	productLots := api.Group("/products/:product_id/lots")
	productLots.Get("/:lot", lotHandler.Get)
	productLots.Put("/:lot/quality", lotHandler.SetQuality)
	productLots.Post("/:lot/status", lotHandler.ChangeStatus)

	// Serials
	serialHandler := NewSerialHandler(deps.Serials)
	serials := api.Group("/products/:product_id/serials")
	serials.Get("/", serialHandler.List)
	serials.Get("/:serial", serialHandler.Get)
	serials.Post("/:serial/warranty", serialHandler.MarkWarranty)

	// Alerts
	alertHandler := NewAlertHandler(deps.Alerts)
	alertGroup := api.Group("/alerts")
	alertGroup.Get("/", alertHandler.List)
	alertGroup.Post("/:id/acknowledge", alertHandler.Acknowledge)
	alertGroup.Post("/:id/resolve", alertHandler.Resolve)
}
