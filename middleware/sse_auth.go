// middleware/sse_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// StreamAuthMiddleware authenticates event-stream connections. EventSource
// clients cannot set headers, so the gateway re-issues the service token and
// the resolved user id as query params when it proxies the stream.
//
// Usage:
//
//	app.Get("/events/stream", middleware.StreamAuthMiddleware(), streamHandler)
func StreamAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("LEDGER_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ LEDGER_SERVICE_TOKEN is not set — service cannot authenticate stream clients")
	}

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		userID := strings.TrimSpace(c.Query("user_id"))

		if token == "" {
			log.Printf("[StreamAuth] ❌ Missing token query param for %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		if token != expectedToken {
			log.Printf("[StreamAuth] ❌ Invalid token for %s (user=%q)", c.Path(), userID)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		// Empty user_id is allowed: the stream then carries broadcasts only.
		c.Locals("user_id", userID)
		return c.Next()
	}
}
