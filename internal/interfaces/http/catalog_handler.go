package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
)

const maxCatalogPage = 100

// CatalogHandler consulta de productos y bodegas referenciados por el ledger.
type CatalogHandler struct {
	products   *usecase.ProductUseCase
	warehouses *usecase.WarehouseUseCase
}

// NewCatalogHandler construye el handler.
func NewCatalogHandler(products *usecase.ProductUseCase, warehouses *usecase.WarehouseUseCase) *CatalogHandler {
	return &CatalogHandler{products: products, warehouses: warehouses}
}

func parsePage(c *fiber.Ctx) (dto.PageRequest, bool) {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil || page.Limit < 0 || page.Limit > maxCatalogPage || page.Offset < 0 {
		return page, false
	}
	return page, true
}

// ListProducts godoc
// @Summary      Listar productos del catálogo
// @Tags         catalog
// @Produce      json
// @Param        limit             query  int   false  "Tamaño de página (máx. 100)"
// @Param        offset            query  int   false  "Desplazamiento"
// @Param        include_archived  query  bool  false  "Incluir archivados"
// @Success      200  {object}  dto.ProductListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/v1/products [get]
func (h *CatalogHandler) ListProducts(c *fiber.Ctx) error {
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "INVALID_LIMIT", "limit debe estar entre 1 y 100 y offset no puede ser negativo")
	}
	out, err := h.products.List(c.UserContext(), page, c.QueryBool("include_archived"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// GetProduct godoc
// @Summary      Obtener un producto
// @Tags         catalog
// @Produce      json
// @Param        id  path  string  true  "Producto"
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/v1/products/{id} [get]
func (h *CatalogHandler) GetProduct(c *fiber.Ctx) error {
	out, err := h.products.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// ListWarehouses godoc
// @Summary      Listar bodegas
// @Tags         catalog
// @Produce      json
// @Param        limit             query  int   false  "Tamaño de página (máx. 100)"
// @Param        offset            query  int   false  "Desplazamiento"
// @Param        include_archived  query  bool  false  "Incluir archivadas"
// @Success      200  {object}  dto.WarehouseListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/v1/warehouses [get]
func (h *CatalogHandler) ListWarehouses(c *fiber.Ctx) error {
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "INVALID_LIMIT", "limit debe estar entre 1 y 100 y offset no puede ser negativo")
	}
	out, err := h.warehouses.List(c.UserContext(), page, c.QueryBool("include_archived"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// GetWarehouse godoc
// @Summary      Obtener una bodega
// @Tags         catalog
// @Produce      json
// @Param        id  path  string  true  "Bodega"
// @Success      200  {object}  dto.WarehouseResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/v1/warehouses/{id} [get]
func (h *CatalogHandler) GetWarehouse(c *fiber.Ctx) error {
	out, err := h.warehouses.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
