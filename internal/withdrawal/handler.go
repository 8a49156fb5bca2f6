package withdrawal

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/account"
	"github.com/congo-pay/jointaccount/internal/apierr"
	"github.com/congo-pay/jointaccount/internal/ledger"
	"github.com/congo-pay/jointaccount/internal/middleware"
)

// Handler exposes withdraw request endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a withdrawal HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Request opens a withdraw request.
func (h *Handler) Request(c *fiber.Ctx) error {
	accountID, err := account.ParseID(c, "accountId")
	if err != nil {
		return err
	}
	var body RequestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	view, err := h.service.Request(c.UserContext(), middleware.Caller(c), accountID, body.Amount)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"withdraw_id": view.ID, "request": view})
}

// Get returns a withdraw request with its approval state.
func (h *Handler) Get(c *fiber.Ctx) error {
	accountID, withdrawID, err := ids(c)
	if err != nil {
		return err
	}
	view, err := h.service.Get(c.UserContext(), accountID, withdrawID)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.JSON(view)
}

// Approve records the caller's approval.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.transition(c, h.service.Approve)
}

// Execute performs an approved withdrawal.
func (h *Handler) Execute(c *fiber.Ctx) error {
	return h.transition(c, h.service.Execute)
}

// Cancel withdraws a pending request.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, h.service.Cancel)
}

type transitionFunc func(ctx context.Context, caller ledger.Identity, accountID, withdrawID uint64) (View, error)

func (h *Handler) transition(c *fiber.Ctx, fn transitionFunc) error {
	accountID, withdrawID, err := ids(c)
	if err != nil {
		return err
	}
	view, err := fn(c.UserContext(), middleware.Caller(c), accountID, withdrawID)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

func ids(c *fiber.Ctx) (uint64, uint64, error) {
	accountID, err := account.ParseID(c, "accountId")
	if err != nil {
		return 0, 0, err
	}
	withdrawID, err := account.ParseID(c, "withdrawId")
	if err != nil {
		return 0, 0, err
	}
	return accountID, withdrawID, nil
}
