package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	DeviceID string `json:"device_id,omitempty"`
}

func toResponse(user User) userResponse {
	return userResponse{UserID: user.ID, Phone: user.Phone, DeviceID: user.DeviceID}
}

// Register handles user onboarding. The returned user_id is the identity used
// as an account owner.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	switch {
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// Me returns the profile of the caller resolved by the auth middleware.
func (h *Handler) Me(userID func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := h.service.Lookup(c.UserContext(), userID(c))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "unknown user")
		}
		return c.JSON(toResponse(user))
	}
}
