package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/stock-ledger/internal/application/alerts"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// AlertHandler consulta y ciclo de vida de alertas.
type AlertHandler struct {
	engine *alerts.Engine
}

// NewAlertHandler construye el handler.
func NewAlertHandler(engine *alerts.Engine) *AlertHandler {
	return &AlertHandler{engine: engine}
}

// List godoc
// @Summary      Listar alertas (más recientes primero)
// @Tags         alerts
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Param        type          query  string  false  "low_stock | overstock | expiry_warning | no_movement"
// @Param        status        query  string  false  "active | acknowledged | resolved"
// @Param        open          query  bool    false  "Solo no resueltas"
// @Success      200  {object}  dto.AlertListResponse
// @Router       /api/v1/alerts [get]
func (h *AlertHandler) List(c *fiber.Ctx) error {
	list, err := h.engine.ListAlerts(c.UserContext(), repository.AlertFilter{
		ProductID:   c.Query("product_id"),
		WarehouseID: c.Query("warehouse_id"),
		Type:        entity.AlertType(strings.ToLower(c.Query("type"))),
		Status:      entity.AlertStatus(strings.ToLower(c.Query("status"))),
		OpenOnly:    c.QueryBool("open", false),
	})
	if err != nil {
		return writeError(c, err)
	}
	out := dto.AlertListResponse{Items: make([]dto.AlertResponse, 0, len(list))}
	for _, a := range list {
		out.Items = append(out.Items, dto.NewAlertResponse(a))
	}
	return c.JSON(out)
}

// Acknowledge godoc
// @Summary      Reconocer alerta
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id    path  string                       true   "ID de la alerta"
// @Param        body  body  dto.AcknowledgeAlertRequest  false  "by"
// @Success      200   {object}  dto.AlertResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/v1/alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *fiber.Ctx) error {
	by, ok := alertActor(c)
	if !ok {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	a, err := h.engine.AcknowledgeAlert(c.UserContext(), c.Params("id"), by)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewAlertResponse(a))
}

// Resolve godoc
// @Summary      Resolver alerta manualmente
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id    path  string                       true   "ID de la alerta"
// @Param        body  body  dto.AcknowledgeAlertRequest  false  "by"
// @Success      200   {object}  dto.AlertResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/v1/alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *fiber.Ctx) error {
	by, ok := alertActor(c)
	if !ok {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	a, err := h.engine.ResolveAlert(c.UserContext(), c.Params("id"), by)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewAlertResponse(a))
}

// alertActor lee "by" del body (opcional) con prioridad de X-Actor.
func alertActor(c *fiber.Ctx) (string, bool) {
	var req dto.AcknowledgeAlertRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", false
		}
	}
	return GetActor(c, req.By), true
}
