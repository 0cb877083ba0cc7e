// handlers/subscription.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSubscriptionRoutes(app *fiber.App, subscriptionService *services.SubscriptionService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/subscriptions", subscriptionService.CreateSubscription)
	secured.Get("/subscriptions/active", subscriptionService.GetActiveSubscription)
	secured.Get("/subscriptions/history", subscriptionService.GetInvalidSubscriptions)
	secured.Get("/subscriptions/allocated", subscriptionService.GetBitcoinAllocated)
	secured.Get("/subscriptions/stats", subscriptionService.GetMiningStats)
	secured.Get("/subscriptions/blocks/:block_id/reward", subscriptionService.GetBlockReward)
}
