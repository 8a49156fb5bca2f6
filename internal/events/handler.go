package events

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

const maxPage = 1000

// Handler exposes the event log for pull-based consumers.
type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

// List returns events with seq > after, oldest first.
func (h *Handler) List(c *fiber.Ctx) error {
	after, err := strconv.ParseUint(c.Query("after", "0"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid after")
	}
	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(ledger.DefaultEventPage)))
	if err != nil || limit <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid limit")
	}
	if limit > maxPage {
		limit = maxPage
	}

	page, err := h.source.Events(c.UserContext(), after, limit)
	if err != nil {
		return err
	}
	if page == nil {
		page = []ledger.Event{}
	}
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].Seq
	}
	return c.JSON(fiber.Map{"events": page, "next": next})
}
