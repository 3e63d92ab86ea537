package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/api/handlers"
	"github.com/postpilothq/postpilot/internal/api/middleware"
	"github.com/postpilothq/postpilot/internal/dispatch"
	job "github.com/postpilothq/postpilot/internal/jobs"
	"github.com/postpilothq/postpilot/internal/publish"
	"github.com/postpilothq/postpilot/internal/publish/instagram"
	"github.com/postpilothq/postpilot/internal/publish/linkedin"
	"github.com/postpilothq/postpilot/internal/queue"
	"github.com/postpilothq/postpilot/internal/quota"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/retry"
	"github.com/postpilothq/postpilot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	historyRepo := repository.NewPublishHistoryRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)

	credentialResolver := service.NewCredentialResolver(cfg.SecretKey, cfg.LegacySecretKeys)
	postService := service.NewPostService(postRepo, connectionRepo, cfg.Dispatch.RetryCeiling)
	connectionService := service.NewConnectionService(connectionRepo)
	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(*cfg, mediaAssetRepo, r2Service)

	registry := publish.NewRegistry()
	registry.Register(linkedin.NewPublisher())
	registry.Register(instagram.NewPublisher())

	gate := quota.NewRedisGate(redisClient, quota.Limits{
		PerMinute: cfg.Quota.PerMinute,
		PerHour:   cfg.Quota.PerHour,
		PerDay:    cfg.Quota.PerDay,
	})

	policy := retry.NewPolicy(cfg.Dispatch.RetryCeiling, cfg.Dispatch.BackoffBase, cfg.Dispatch.BackoffCap)

	dispatcher := dispatch.NewDispatcher(postRepo, connectionRepo, historyRepo, registry, gate,
		policy, credentialResolver, dispatch.NewClock(), dispatch.Options{
			Workers:        cfg.Dispatch.Workers,
			PublishTimeout: cfg.Dispatch.PublishTimeout,
		})

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/schedule", post.SchedulePost)
	api.Post("/posts/reschedule", post.ReschedulePost)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/retry", post.RetryPost)
	api.Get("/posts/info", post.GetPost)
	api.Get("/posts/range", post.ListRange)
	api.Get("/posts/day_counts", post.DayCounts)

	connection := handlers.NewConnectionHandler(connectionService)
	api.Get("/connections", connection.ListConnections)
	api.Post("/connections/remove", connection.RemoveConnection)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media/upload", media.UploadAsset)
	api.Get("/media", media.ListAssets)

	quotaAlertJob := job.NewQuotaAlertJob(*cfg, gate, connectionRepo)
	quotaHandler := handlers.NewQuotaHandler(gate, quotaAlertJob)
	api.Get("/quota/usage", quotaHandler.GetUsage)
	api.Get("/quota/alerts", quotaHandler.GetAlerts)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(*cfg, connectionRepo, credentialResolver)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx, cfg.Dispatch.PollInterval)

	queueW := queue.NewQueue(dispatcher)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Dispatch.Workers,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, stopDispatch)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, stopDispatch context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	stopDispatch()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
