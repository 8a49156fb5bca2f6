package apierr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

// Error carries the HTTP status and machine readable code for a failure.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Body is the JSON shape of every error response.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var ledgerErrors = []struct {
	err    error
	status int
	code   string
}{
	{ledger.ErrInvalidOwnerSet, http.StatusBadRequest, "invalid_owner_set"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{ledger.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{ledger.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{ledger.ErrRequestAccountMismatch, http.StatusNotFound, "request_account_mismatch"},
	{ledger.ErrAlreadyExecuted, http.StatusConflict, "already_executed"},
	{ledger.ErrAlreadyApproved, http.StatusConflict, "already_approved"},
	{ledger.ErrRequestCancelled, http.StatusConflict, "request_cancelled"},
	{ledger.ErrInsufficientApprovals, http.StatusConflict, "insufficient_approvals"},
	{ledger.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
}

// FromLedger converts a core error into an API error. Unknown errors pass
// through untouched so the error handler can treat them as internal.
func FromLedger(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range ledgerErrors {
		if errors.Is(err, m.err) {
			return New(m.status, m.code, err)
		}
	}
	return err
}

// Resolve works out status, code and message for any error a handler returns.
func Resolve(err error) (int, Body) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, Body{Error: apiErr.Code, Message: apiErr.Error()}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, Body{Error: codeFor(fe.Code), Message: fe.Message}
	}
	if mapped := FromLedger(err); mapped != err {
		return Resolve(mapped)
	}
	return http.StatusInternalServerError, Body{Error: "internal", Message: http.StatusText(http.StatusInternalServerError)}
}

// Handler renders errors as JSON. Internal failures are logged and their
// detail is not echoed back to the client.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := Resolve(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", slog.String("method", c.Method()), slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(body)
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if status >= http.StatusInternalServerError {
			return "internal"
		}
		return "error"
	}
}
