// handlers/block.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBlockRoutes(app *fiber.App, blockService *services.BlockService) {
	// 🔓 Public — full chain of ingested blocks
	app.Get("/blocks", blockService.GetAllBlocks)

	// 🔐 Secured — blocks with the caller's allocation attached
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/blocks", blockService.GetUserBlocks)
}
