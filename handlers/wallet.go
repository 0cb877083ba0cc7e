// handlers/wallet.go
package handlers

import (
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService) {
	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/wallet", walletService.GetWallet)
	secured.Post("/wallet/withdrawals", walletService.CreateWithdrawalRequest)
	secured.Get("/wallet/withdrawals", walletService.ListUserWithdrawals)
	secured.Delete("/wallet/withdrawals/:id", walletService.DeleteWithdrawal)

	// 👮 Admin routes — withdrawal review desk
	admin := secured.Group("/admin", middleware.RequireAdmin())

	admin.Get("/withdrawals", walletService.ListAllWithdrawals)
	admin.Post("/withdrawals/:id/process", walletService.ProcessWithdrawal)
	admin.Post("/withdrawals/:id/reject", walletService.RejectWithdrawal)
	admin.Post("/withdrawals/:id/review", walletService.ReviewWithdrawal)
}
