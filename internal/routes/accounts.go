package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/account"
	"github.com/congo-pay/jointaccount/internal/withdrawal"
)

// RegisterAccountRoutes wires joint account and withdraw request endpoints.
func RegisterAccountRoutes(r fiber.Router, accounts *account.Handler, withdrawals *withdrawal.Handler) {
	group := r.Group("/accounts")
	group.Post("", accounts.Create)
	group.Get("", accounts.List)
	group.Get("/:accountId/owners", accounts.Owners)
	group.Get("/:accountId/balance", accounts.Balance)
	group.Post("/:accountId/deposits", accounts.Deposit)

	group.Post("/:accountId/withdrawals", withdrawals.Request)
	group.Get("/:accountId/withdrawals/:withdrawId", withdrawals.Get)
	group.Post("/:accountId/withdrawals/:withdrawId/approve", withdrawals.Approve)
	group.Post("/:accountId/withdrawals/:withdrawId/execute", withdrawals.Execute)
	group.Post("/:accountId/withdrawals/:withdrawId/cancel", withdrawals.Cancel)
}
