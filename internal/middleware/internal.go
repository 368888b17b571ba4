package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const InternalKeyHeader = "X-Internal-Key"

// InternalKey guards collaborator and scheduler endpoints with a shared key.
// An empty configured key rejects everything.
func InternalKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(InternalKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied",
			})
		}
		return c.Next()
	}
}
