package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/auth"
	"github.com/congo-pay/jointaccount/internal/identity"
	"github.com/congo-pay/jointaccount/internal/middleware"
)

// RegisterAuthRoutes wires the public authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
}

// RegisterSessionRoutes wires endpoints acting on the token bearer.
func RegisterSessionRoutes(r fiber.Router, authHandler *auth.Handler, identityHandler *identity.Handler) {
	r.Post("/auth/logout", authHandler.Logout(middleware.UserID))
	r.Get("/me", identityHandler.Me(middleware.UserID))
}
