package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"trade-challenge-system/handlers"
	"trade-challenge-system/middleware"
	"trade-challenge-system/models"
	"trade-challenge-system/services"
	"trade-challenge-system/utils"
	"trade-challenge-system/workers"

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
		AppName: "trade-challenge-system",
	})

	// CORS — load allowed origins from environment
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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Challenge{},
		&models.Trade{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	engineCfg := services.EngineConfig{
		DefaultTradeQuantity:  envFloat("DEFAULT_TRADE_QUANTITY", services.DefaultEngineConfig.DefaultTradeQuantity),
		DailyEstimateQuantity: envFloat("DAILY_ESTIMATE_QUANTITY", services.DefaultEngineConfig.DailyEstimateQuantity),
	}

	engine := services.NewChallengeEngine(db, engineCfg)
	userService := services.NewUserService(db, jwtSecret)
	challengeService := services.NewChallengeService(db, engine)
	tradeService := services.NewTradeService(db, engine)
	priceService := services.NewPriceService(utils.HTTPClient)
	signalService := services.NewSignalService(priceService, time.Now().UnixNano())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger archive worker — optional, skipped unless the bucket is configured
	archiveEnabled, err := utils.InitR2()
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}
	if archiveEnabled {
		archiveClient := workers.NewArchiveClient(db)
		go workers.PollTerminalChallenges(ctx, archiveClient, 1*time.Minute)
	} else {
		log.Println("⚠️  Ledger archive bucket not configured, archive worker disabled")
	}

	refreshInterval := envDuration("PRICE_REFRESH_INTERVAL", 30*time.Second)
	priceService.TTL = envDuration("PRICE_CACHE_TTL", priceService.TTL)
	priceService.StartRefreshScheduler(refreshInterval)

	auth := middleware.UserContextMiddleware([]byte(jwtSecret))
	handlers.SetupUserRoutes(app, userService, auth)
	handlers.SetupChallengeRoutes(app, challengeService, auth)
	handlers.SetupTradeRoutes(app, tradeService, auth)
	handlers.SetupMarketRoutes(app, priceService, signalService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Price refresh running (every %s, cache TTL %s)", refreshInterval, priceService.TTL)
	log.Printf("✅ Challenge engine ready (%s)", engineCfg)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
		log.Printf("⚠️  Invalid %s=%q, using default %.0f", key, os.Getenv(key), fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, os.Getenv(key), fallback)
	}
	return fallback
}
