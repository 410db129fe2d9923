package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

const (
	defaultMovementPage = 100
	maxMovementPage     = 1000
)

// InventoryHandler movimientos, posiciones, reservas y reposición.
type InventoryHandler struct {
	uc            *inventory.RegisterMovementUseCase
	ledger        *inventory.LedgerService
	replenishment *inventory.ReplenishmentUseCase
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(uc *inventory.RegisterMovementUseCase, ledger *inventory.LedgerService, replenishment *inventory.ReplenishmentUseCase) *InventoryHandler {
	return &InventoryHandler{uc: uc, ledger: ledger, replenishment: replenishment}
}

func newResultResponse(r *inventory.MovementResult) dto.MovementResultResponse {
	out := dto.MovementResultResponse{
		Movement:  dto.NewMovementResponse(r.Movement),
		Positions: make([]dto.PositionResponse, 0, len(r.Positions)),
	}
	for _, p := range r.Positions {
		out.Positions = append(out.Positions, dto.NewPositionResponse(p))
	}
	return out
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de inventario
// @Tags         movements
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterMovementRequest  true  "type, product_id, warehouse_id, location_id, quantity (to_* para traslados)"
// @Success      201   {object}  dto.MovementResultResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/v1/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	var req dto.RegisterMovementRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	in, err := inventory.MovementInputFromRequest(req)
	if err != nil {
		return writeError(c, err)
	}
	in.Actor = GetActor(c, in.Actor)
	res, err := h.uc.RegisterMovement(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newResultResponse(res))
}

// ReverseMovement godoc
// @Summary      Reversar un movimiento
// @Tags         movements
// @Accept       json
// @Produce      json
// @Param        number  path  int                         true   "Número de movimiento"
// @Param        body    body  dto.ReverseMovementRequest  false  "actor, notes"
// @Success      201     {object}  dto.MovementResultResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Failure      409     {object}  dto.ErrorResponse
// @Router       /api/v1/movements/{number}/reverse [post]
func (h *InventoryHandler) ReverseMovement(c *fiber.Ctx) error {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number <= 0 {
		return badRequest(c, "INVALID_NUMBER", "número de movimiento inválido")
	}
	var req dto.ReverseMovementRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	res, err := h.uc.ReverseMovement(c.UserContext(), number, GetActor(c, req.Actor), req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newResultResponse(res))
}

// GetMovement godoc
// @Summary      Obtener movimiento por número
// @Tags         movements
// @Produce      json
// @Param        number  path  int  true  "Número de movimiento"
// @Success      200     {object}  dto.MovementResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Router       /api/v1/movements/{number} [get]
func (h *InventoryHandler) GetMovement(c *fiber.Ctx) error {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number <= 0 {
		return badRequest(c, "INVALID_NUMBER", "número de movimiento inválido")
	}
	m, err := h.ledger.GetMovement(c.UserContext(), number)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewMovementResponse(m))
}

// QueryMovements godoc
// @Summary      Consultar el ledger de movimientos
// @Description  Página en orden de número. next_after se usa como cursor "after" de la siguiente página.
// @Tags         movements
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega (origen o destino)"
// @Param        type          query  string  false  "Tipo de movimiento"
// @Param        from          query  string  false  "Desde (RFC3339)"
// @Param        to            query  string  false  "Hasta (RFC3339)"
// @Param        after         query  int     false  "Cursor: número de movimiento"
// @Param        limit         query  int     false  "Tamaño de página (máx. 1000)"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/v1/movements [get]
func (h *InventoryHandler) QueryMovements(c *fiber.Ctx) error {
	filter := repository.MovementFilter{
		ProductID:   c.Query("product_id"),
		WarehouseID: c.Query("warehouse_id"),
		Type:        entity.MovementType(c.Query("type")),
		After:       int64(c.QueryInt("after", 0)),
		Limit:       c.QueryInt("limit", defaultMovementPage),
	}
	if filter.Limit <= 0 || filter.Limit > maxMovementPage {
		return badRequest(c, "INVALID_LIMIT", "limit debe estar entre 1 y 1000")
	}
	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "INVALID_DATE", param+" debe ser RFC3339")
		}
		*dst = &t
	}

	seq, err := h.ledger.QueryMovements(c.UserContext(), filter)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.MovementListResponse{Items: make([]dto.MovementResponse, 0)}
	for m, err := range seq {
		if err != nil {
			return writeError(c, err)
		}
		out.Items = append(out.Items, dto.NewMovementResponse(m))
	}
	if len(out.Items) == filter.Limit {
		out.NextAfter = out.Items[len(out.Items)-1].MovementNumber
	}
	return c.JSON(out)
}

// GetPosition godoc
// @Summary      Obtener posición de stock
// @Tags         positions
// @Produce      json
// @Param        product_id    query  string  true   "Producto"
// @Param        variant_id    query  string  false  "Variante"
// @Param        warehouse_id  query  string  true   "Bodega"
// @Param        location_id   query  string  true   "Ubicación"
// @Success      200  {object}  dto.PositionResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/v1/positions/lookup [get]
func (h *InventoryHandler) GetPosition(c *fiber.Ctx) error {
	key := entity.PositionKey{
		ProductID:   c.Query("product_id"),
		VariantID:   c.Query("variant_id"),
		WarehouseID: c.Query("warehouse_id"),
		LocationID:  c.Query("location_id"),
	}
	pos, err := h.ledger.GetPosition(c.UserContext(), key)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewPositionResponse(pos))
}

// ListPositions godoc
// @Summary      Listar posiciones
// @Tags         positions
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Param        location_id   query  string  false  "Ubicación"
// @Param        non_zero      query  bool    false  "Solo posiciones con stock"
// @Success      200  {object}  dto.PositionListResponse
// @Router       /api/v1/positions [get]
func (h *InventoryHandler) ListPositions(c *fiber.Ctx) error {
	list, err := h.ledger.ListPositions(c.UserContext(), repository.PositionFilter{
		ProductID:   c.Query("product_id"),
		VariantID:   c.Query("variant_id"),
		WarehouseID: c.Query("warehouse_id"),
		LocationID:  c.Query("location_id"),
		NonZeroOnly: c.QueryBool("non_zero", false),
	})
	if err != nil {
		return writeError(c, err)
	}
	out := dto.PositionListResponse{Items: make([]dto.PositionResponse, 0, len(list))}
	for _, p := range list {
		out.Items = append(out.Items, dto.NewPositionResponse(p))
	}
	return c.JSON(out)
}

// WarehouseUtilization godoc
// @Summary      Utilización de una bodega
// @Tags         positions
// @Produce      json
// @Param        id   path  string  true  "Bodega"
// @Success      200  {object}  dto.UtilizationResponse
// @Router       /api/v1/warehouses/{id}/utilization [get]
func (h *InventoryHandler) WarehouseUtilization(c *fiber.Ctx) error {
	u, err := h.ledger.WarehouseUtilization(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewUtilizationResponse(u))
}

// Allocate godoc
// @Summary      Reservar stock
// @Tags         positions
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AllocationRequest  true  "Posición y cantidad (o seriales)"
// @Success      200   {object}  dto.PositionResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/v1/allocations [post]
func (h *InventoryHandler) Allocate(c *fiber.Ctx) error {
	return h.reserve(c, true)
}

// Release godoc
// @Summary      Liberar reserva
// @Tags         positions
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AllocationRequest  true  "Posición y cantidad (o seriales)"
// @Success      200   {object}  dto.PositionResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/v1/allocations/release [post]
func (h *InventoryHandler) Release(c *fiber.Ctx) error {
	return h.reserve(c, false)
}

func (h *InventoryHandler) reserve(c *fiber.Ctx, allocate bool) error {
	var req dto.AllocationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	in := inventory.AllocationInputFromRequest(req)
	in.Actor = GetActor(c, in.Actor)
	var (
		pos *entity.Position
		err error
	)
	if allocate {
		pos, err = h.uc.AllocateStock(c.UserContext(), in)
	} else {
		pos, err = h.uc.ReleaseStock(c.UserContext(), in)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewPositionResponse(pos))
}

// GetReplenishmentList godoc
// @Summary      Lista de reposición
// @Description  Productos en o por debajo del punto de reorden, con la cantidad sugerida hasta el stock ideal.
// @Tags         positions
// @Produce      json
// @Param        warehouse_id  query  string  false  "Filtrar por bodega. Vacío = todas."
// @Success      200  {array}   dto.ReplenishmentSuggestionDTO
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/v1/replenishment [get]
func (h *InventoryHandler) GetReplenishmentList(c *fiber.Ctx) error {
	list, err := h.replenishment.GenerateReplenishmentList(c.UserContext(), c.Query("warehouse_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"total":          len(list),
		"replenishments": list,
	})
}
