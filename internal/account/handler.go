package account

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/apierr"
	"github.com/congo-pay/jointaccount/internal/ledger"
	"github.com/congo-pay/jointaccount/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OtherOwners []string `json:"other_owners"`
}

type accountResponse struct {
	ID     uint64            `json:"id"`
	Owners []ledger.Identity `json:"owners"`
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Create opens a joint account for the authenticated caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.service.Create(c.UserContext(), middleware.Caller(c), req.OtherOwners)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{ID: summary.ID, Owners: summary.Owners})
}

// List returns the accounts co-owned by the caller.
func (h *Handler) List(c *fiber.Ctx) error {
	ids, err := h.service.List(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.JSON(fiber.Map{"accounts": ids})
}

// Owners returns the owners of an account.
func (h *Handler) Owners(c *fiber.Ctx) error {
	accountID, err := ParseID(c, "accountId")
	if err != nil {
		return err
	}
	owners, err := h.service.Owners(c.UserContext(), accountID)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.JSON(fiber.Map{"account_id": accountID, "owners": owners})
}

// Balance returns the balance of an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID, err := ParseID(c, "accountId")
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), accountID)
	if err != nil {
		return apierr.FromLedger(err)
	}
	return c.JSON(fiber.Map{"account_id": accountID, "balance": balance})
}

// Deposit credits an account with the given amount.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	accountID, err := ParseID(c, "accountId")
	if err != nil {
		return err
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Deposit(c.UserContext(), middleware.Caller(c), accountID, req.Amount); err != nil {
		return apierr.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"account_id": accountID, "amount": req.Amount})
}

// ParseID reads a numeric route parameter.
func ParseID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
