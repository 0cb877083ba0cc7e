// handlers/notification.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(app *fiber.App, notificationService *services.NotificationService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/notifications", notificationService.GetUserNotifications)
	secured.Post("/notifications/read", notificationService.MarkNotificationsAsRead)

	// 👮 Admin — push a notification to one user or broadcast to all
	admin := secured.Group("/admin", middleware.RequireAdmin())

	admin.Post("/notifications", notificationService.CreateNotification)
}
