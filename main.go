package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"race-results-system/handlers"
	"race-results-system/middleware"
	"race-results-system/models"
	"race-results-system/repository"
	"race-results-system/services"
	"race-results-system/utils"
	"race-results-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024, // results CSVs stay small; 50MB is generous
	})

	// Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArchive(); err != nil {
		log.Fatal("failed to initialize import archive client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Race{},
		&models.AgeCategory{},
		&models.IndividualResult{},
		&models.TeamResult{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	store := repository.NewGormStore(db)
	resolver := services.NewResolverService(store)
	resultsService := services.NewResultsService(store, resolver)
	importerService := services.NewImporterService(store, resolver, resultsService)
	leaderboardService := services.NewLeaderboardService(store)

	directoryURL := os.Getenv("DIRECTORY_SERVICE_URL")
	if directoryURL == "" {
		log.Fatal("DIRECTORY_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("RESULTS_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("RESULTS_SERVICE_TOKEN environment variable not set")
	}

	syncWorker := workers.NewMemberSyncWorker(db, directoryURL, "/api/v1/public/members", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting member directory sync worker...")
		syncWorker.Start(ctx)
	}()

	resultsService.StartConsistencySweeper(5 * time.Minute)

	handlers.SetupResultRoutes(app, importerService, resultsService, leaderboardService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Member directory sync worker running")
	log.Println("✅ Aggregate consistency sweeper running (every 5m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
