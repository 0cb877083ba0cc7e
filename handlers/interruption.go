// handlers/interruption.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupInterruptionRoutes(app *fiber.App, interruptionService *services.InterruptionService) {
	// 🔓 Public — clients poll this to render the "farm offline" banner
	app.Get("/interruptions/active", interruptionService.GetActiveInterruption)

	// 👮 Admin routes — operators open and close outage windows
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Get("/interruptions", interruptionService.GetInterruptions)
	admin.Post("/interruptions/start", interruptionService.StartInterruption)
	admin.Post("/interruptions/end", interruptionService.EndInterruption)
}
