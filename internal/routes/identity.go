package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/identity"
)

// RegisterIdentityRoutes wires onboarding. The user_id it returns is the
// identity other parties list as a co-owner.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}
