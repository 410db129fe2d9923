package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Locals keys.
const (
	LocalActor     = "actor"
	LocalRequestID = "request_id"
)

// HeaderActor identifica al usuario u operador que origina la petición. La autenticación
// la resuelve la capa de API externa; aquí solo se propaga para auditoría.
const HeaderActor = "X-Actor"

// ActorMiddleware copia X-Actor a c.Locals y asigna un request id.
func ActorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if actor := strings.TrimSpace(c.Get(HeaderActor)); actor != "" {
			c.Locals(LocalActor, actor)
		}
		rid := c.Get(fiber.HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals(LocalRequestID, rid)
		c.Set(fiber.HeaderXRequestID, rid)
		return c.Next()
	}
}

// RequestLogger registra método, ruta, status y latencia de cada petición.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		ev := log.Debug()
		if status >= fiber.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", GetRequestID(c)).
			Msg("http")
		return err
	}
}

// GetActor devuelve el actor de la petición (header X-Actor) o fallback si no vino.
func GetActor(c *fiber.Ctx, fallback string) string {
	if s, ok := c.Locals(LocalActor).(string); ok && s != "" {
		return s
	}
	return fallback
}

// GetRequestID devuelve el request id asignado por ActorMiddleware.
func GetRequestID(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalRequestID).(string)
	return s
}
