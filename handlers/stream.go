// handlers/stream.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupStreamRoutes(app *fiber.App, streamService *services.StreamService) {
	// EventSource cannot set headers, so the stream authenticates via
	// query params instead of the gateway Authorization header.
	app.Get("/events/stream", middleware.StreamAuthMiddleware(), streamService.StreamEvents)
}
