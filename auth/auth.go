// server/auth/auth.go
package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderName = "X-Mindmap-Token"
	QueryName  = "token"
)

var ErrUnauthorized = fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")

// Middleware rejects requests that do not carry token. Browsers cannot set
// headers on websocket upgrades, so the query parameter is accepted too. An
// empty token disables the check.
func Middleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		got := c.Get(HeaderName)
		if got == "" {
			got = c.Query(QueryName)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return ErrUnauthorized
		}
		return c.Next()
	}
}
