package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"orbit-progression-service/config"
	"orbit-progression-service/handlers"
	"orbit-progression-service/logger"
	"orbit-progression-service/models"
	"orbit-progression-service/services"
	"orbit-progression-service/utils"
	"orbit-progression-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	applog := logger.New(cfg.Environment)

	app := fiber.New(fiber.Config{
		AppName: "orbit-progression-service",
	})

	// CORS for the host UI origins (comma-separated in env)
	allowedOrigins := make([]string, 0)
	for _, origin := range strings.Split(cfg.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins = append(allowedOrigins, origin)
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-Group-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// TranslateError maps driver duplicate-key failures to
	// gorm.ErrDuplicatedKey; the services rely on it for dedupe and
	// at-most-once unlock detection.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.XPTransaction{},
		&models.UserProgress{},
		&models.Achievement{},
		&models.PeerValidation{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	var events *services.EventPublisher
	if cfg.AMQPURL != "" {
		events, err = services.NewEventPublisher(cfg.AMQPURL, cfg.EventExchange, applog)
		if err != nil {
			applog.WithError(err).Warn("RabbitMQ unavailable, progression events disabled")
			events = nil
		} else {
			defer events.Close()
		}
	}

	leaderboard := services.NewLeaderboardService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, applog)

	ledgerService := services.NewLedgerService(db, applog)
	ledgerService.LevelXPUnit = cfg.LevelXPUnit
	ledgerService.StrictCatalog = cfg.Development()
	ledgerService.Events = events
	ledgerService.Leaderboard = leaderboard

	achievementService := services.NewAchievementService(db, applog, ledgerService)
	achievementService.Events = events

	validationService := services.NewPeerValidationService(db, applog, ledgerService)
	validationService.RequiredValidations = cfg.RequiredValidations
	validationService.Events = events

	streakService := services.NewStreakService(db, applog)

	validationService.StartExpirySweep(cfg.ExpirySweepInterval, cfg.ValidationTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.R2.Enabled() {
		if err := utils.InitR2(cfg.R2); err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		archiveClient := workers.NewLedgerArchiveClient(db, applog)
		go workers.PollLedgerArchive(ctx, archiveClient, cfg.ArchiveInterval)
	}

	// Open endpoints. Registered ahead of the secured groups so the
	// prometheus scraper and liveness probes need no gateway headers.
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.SetupProgressionRoutes(app, ledgerService, achievementService, streakService, leaderboard)
	handlers.SetupValidationRoutes(app, validationService, achievementService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Progression engine running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Validation expiry sweep running (every %s, TTL %s)", cfg.ExpirySweepInterval, cfg.ValidationTTL)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(allowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
