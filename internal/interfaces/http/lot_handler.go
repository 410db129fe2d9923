package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// LotHandler consulta de lotes, calidad y retiro.
type LotHandler struct {
	lots *inventory.LotService
	uc   *inventory.RegisterMovementUseCase
}

// NewLotHandler construye el handler.
func NewLotHandler(lots *inventory.LotService, uc *inventory.RegisterMovementUseCase) *LotHandler {
	return &LotHandler{lots: lots, uc: uc}
}

func newLotSummaryResponse(s *inventory.LotSummary) dto.LotSummaryResponse {
	out := dto.LotSummaryResponse{
		ProductID:     s.ProductID,
		LotNumber:     s.LotNumber,
		ExpiryDate:    s.ExpiryDate,
		QualityStatus: string(s.QualityStatus),
		Total:         s.Total,
		Placements:    make([]dto.LotResponse, 0, len(s.Placements)),
	}
	for _, l := range s.Placements {
		out.Placements = append(out.Placements, dto.NewLotResponse(l))
	}
	return out
}

// List godoc
// @Summary      Listar lotes (orden FEFO)
// @Tags         lots
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Param        status        query  string  false  "active | consumed | expired | recalled"
// @Success      200  {object}  dto.LotListResponse
// @Router       /api/v1/lots [get]
func (h *LotHandler) List(c *fiber.Ctx) error {
	list, err := h.lots.ListLots(c.UserContext(), repository.LotFilter{
		ProductID:   c.Query("product_id"),
		WarehouseID: c.Query("warehouse_id"),
		Status:      entity.LotStatus(strings.ToLower(c.Query("status"))),
	})
	if err != nil {
		return writeError(c, err)
	}
	out := dto.LotListResponse{Items: make([]dto.LotResponse, 0, len(list))}
	for _, l := range list {
		out.Items = append(out.Items, dto.NewLotResponse(l))
	}
	return c.JSON(out)
}

// Get godoc
// @Summary      Obtener un lote con sus ubicaciones
// @Tags         lots
// @Produce      json
// @Param        product_id  path  string  true  "Producto"
// @Param        lot         path  string  true  "Número de lote"
// @Success      200  {object}  dto.LotSummaryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/v1/products/{product_id}/lots/{lot} [get]
func (h *LotHandler) Get(c *fiber.Ctx) error {
	s, err := h.lots.GetLot(c.UserContext(), c.Params("product_id"), c.Params("lot"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newLotSummaryResponse(s))
}

// SetQuality godoc
// @Summary      Cambiar estado de calidad del lote
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        product_id  path  string                 true  "Producto"
// @Param        lot         path  string                 true  "Número de lote"
// @Param        body        body  dto.LotQualityRequest  true  "pending | approved | quarantine | rejected"
// @Success      200  {object}  dto.LotSummaryResponse
// @Router       /api/v1/products/{product_id}/lots/{lot}/quality [put]
func (h *LotHandler) SetQuality(c *fiber.Ctx) error {
	var req dto.LotQualityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	s, err := h.lots.SetLotQuality(c.UserContext(), c.Params("product_id"), c.Params("lot"),
		entity.QualityStatus(strings.ToLower(req.QualityStatus)))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newLotSummaryResponse(s))
}

// ChangeStatus godoc
// @Summary      Retirar o vencer un lote
// @Description  Da de baja el saldo de cada ubicación con un movimiento de scrap.
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        product_id  path  string                true  "Producto"
// @Param        lot         path  string                true  "Número de lote"
// @Param        body        body  dto.LotStatusRequest  true  "recalled | expired"
// @Success      200  {array}   dto.MovementResultResponse
// @Router       /api/v1/products/{product_id}/lots/{lot}/status [post]
func (h *LotHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.LotStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	results, err := h.uc.ChangeLotStatus(c.UserContext(), inventory.LotStatusInputDTO{
		ProductID: c.Params("product_id"),
		LotNumber: c.Params("lot"),
		Status:    entity.LotStatus(strings.ToLower(req.Status)),
		Actor:     GetActor(c, req.Actor),
		Notes:     req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.MovementResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, newResultResponse(r))
	}
	return c.JSON(out)
}
