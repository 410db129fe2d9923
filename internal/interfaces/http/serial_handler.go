package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// SerialHandler registro de unidades serializadas.
type SerialHandler struct {
	registry *inventory.SerialRegistry
}

// NewSerialHandler construye el handler.
func NewSerialHandler(registry *inventory.SerialRegistry) *SerialHandler {
	return &SerialHandler{registry: registry}
}

// List godoc
// @Summary      Listar unidades serializadas
// @Tags         serials
// @Produce      json
// @Param        product_id    path   string  true   "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Param        status        query  string  false  "Estado"
// @Success      200  {object}  dto.SerialListResponse
// @Router       /api/v1/products/{product_id}/serials [get]
func (h *SerialHandler) List(c *fiber.Ctx) error {
	list, err := h.registry.ListSerials(c.UserContext(), repository.SerialFilter{
		ProductID:   c.Params("product_id"),
		WarehouseID: c.Query("warehouse_id"),
		LocationID:  c.Query("location_id"),
		Status:      entity.SerialStatus(strings.ToLower(c.Query("status"))),
	})
	if err != nil {
		return writeError(c, err)
	}
	out := dto.SerialListResponse{Items: make([]dto.SerialResponse, 0, len(list))}
	for _, u := range list {
		out.Items = append(out.Items, dto.NewSerialResponse(u, false))
	}
	return c.JSON(out)
}

// Get godoc
// @Summary      Obtener unidad con historial
// @Tags         serials
// @Produce      json
// @Param        product_id  path  string  true  "Producto"
// @Param        serial      path  string  true  "Número de serie"
// @Success      200  {object}  dto.SerialResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/v1/products/{product_id}/serials/{serial} [get]
func (h *SerialHandler) Get(c *fiber.Ctx) error {
	u, err := h.registry.GetSerial(c.UserContext(), c.Params("product_id"), c.Params("serial"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSerialResponse(u, true))
}

// MarkWarranty godoc
// @Summary      Pasar una unidad vendida a garantía
// @Tags         serials
// @Produce      json
// @Param        product_id  path  string  true  "Producto"
// @Param        serial      path  string  true  "Número de serie"
// @Success      200  {object}  dto.SerialResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/v1/products/{product_id}/serials/{serial}/warranty [post]
func (h *SerialHandler) MarkWarranty(c *fiber.Ctx) error {
	u, err := h.registry.MarkWarranty(c.UserContext(), c.Params("product_id"), c.Params("serial"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewSerialResponse(u, true))
}
