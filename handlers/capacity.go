// handlers/capacity.go
package handlers

import (
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCapacityRoutes(app *fiber.App, capacityService *services.CapacityService) {
	// 🔓 Public — no user context, but still requires Gateway auth
	app.Get("/capacity", capacityService.GetCapacity)
}
