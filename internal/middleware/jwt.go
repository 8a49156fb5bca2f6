package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/jointaccount/internal/auth"
	"github.com/congo-pay/jointaccount/internal/ledger"
)

const (
	userIDLocal       = "user_id"
	tokenVersionLocal = "token_version"
)

// JWTAuth validates bearer access tokens and binds the token subject as the
// caller identity of the request.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		user, err := svc.Verify(c.UserContext(), tokenStr)
		if errors.Is(err, auth.ErrInvalidToken) {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if err != nil {
			return err
		}

		c.Locals(userIDLocal, user.ID)
		c.Locals(tokenVersionLocal, user.TokenVersion)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside JWTAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDLocal).(string)
	return uid
}

// Caller returns the authenticated user as a ledger identity.
func Caller(c *fiber.Ctx) ledger.Identity {
	return ledger.Identity(UserID(c))
}
