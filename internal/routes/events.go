package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/events"
)

// RegisterEventRoutes exposes the ledger event log.
func RegisterEventRoutes(r fiber.Router, h *events.Handler) {
	r.Get("/events", h.List)
}
