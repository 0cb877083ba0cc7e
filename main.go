package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/handlers"
	"hashrate-rental-system/middleware"
	"hashrate-rental-system/models"
	"hashrate-rental-system/services"
	"hashrate-rental-system/utils"
	"hashrate-rental-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "hashrate-rental-system",
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.CapacityLedger{},
		&models.Subscription{},
		&models.UserMinedTotal{},
		&models.Block{},
		&models.Allocation{},
		&models.Interruption{},
		&models.Wallet{},
		&models.WithdrawalRequest{},
		&models.Notification{},
		&models.Metadata{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	cfg := services.LoadTunables()
	hub := events.NewHub()

	capacityService := services.NewCapacityService(db)
	if err := capacityService.EnsureLedger(utils.EnvFloat("TOTAL_HASHRATE_TH", 880)); err != nil {
		log.Fatal("failed to seed capacity ledger:", err)
	}

	explorer := services.NewExplorerClient(utils.EnvString("EXPLORER_URL", "https://blockchain.info"))
	poolStats := services.NewPoolStatsClient(
		utils.EnvString("POOL_API_URL", "https://api.beta.luxor.tech/graphql"),
		os.Getenv("POOL_API_KEY"),
		utils.EnvString("POOL_ORG_SLUG", "luxor"),
	)
	priceClient := services.NewPriceClient(utils.EnvString("PRICE_API_URL", "https://api.binance.com"))
	priceFeed := workers.NewPriceFeed(priceClient, hub, cfg.LocalCurrency)

	notificationService := services.NewNotificationService(db, hub)
	interruptionService := services.NewInterruptionService(db, hub)
	subscriptionService := services.NewSubscriptionService(db, capacityService, priceFeed, hub, cfg)
	walletService := services.NewWalletService(db, priceFeed, hub, cfg)
	blockService := services.NewBlockService(db)
	ingestService := services.NewBlockIngestService(db, explorer, poolStats, hub, cfg)
	streamService := services.NewStreamService(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go priceFeed.Poll(ctx, utils.EnvDuration("PRICE_POLL_INTERVAL", 2*time.Minute))

	scheduler, err := services.StartScheduler(ingestService, subscriptionService,
		utils.EnvDuration("BLOCK_POLL_INTERVAL", 5*time.Minute))
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupCapacityRoutes(app, capacityService)
	handlers.SetupSubscriptionRoutes(app, subscriptionService)
	handlers.SetupWalletRoutes(app, walletService)
	handlers.SetupInterruptionRoutes(app, interruptionService)
	handlers.SetupBlockRoutes(app, blockService)
	handlers.SetupNotificationRoutes(app, notificationService)
	handlers.SetupStreamRoutes(app, streamService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := utils.EnvString("PORT", "5300")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Block ingest, settlement sweep and cost accrual scheduled")
	log.Println("✅ Price polling running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
