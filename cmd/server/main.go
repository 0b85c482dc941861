package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudly/backend/internal/config"
	"github.com/cloudly/backend/internal/database"
	"github.com/cloudly/backend/internal/events"
	"github.com/cloudly/backend/internal/handlers"
	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/services"
	"github.com/cloudly/backend/internal/storage"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBuckets(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio buckets: %v", err)
	}

	bus := events.NewBus()
	notifier := services.NewNotifier(db)
	records := store.NewFileStore(db)

	listingService := services.NewListingService(records)
	countsService := services.NewCountsService(records)
	foldersService := services.NewFoldersService(records)
	lifecycleService := services.NewLifecycleService(records, storageClient, storageClient.FilesBucket(), bus)
	uploader := services.NewUploader(records, storageClient, storageClient.FilesBucket(), bus, notifier,
		cfg.Upload.NominalThroughput, cfg.Upload.ProgressTick)

	authHandler := handlers.NewAuthHandler(db)
	oauthHandler := handlers.NewOAuthHandler(db, cfg)
	filesHandler := handlers.NewFilesHandler(records, listingService, countsService, foldersService,
		lifecycleService, storageClient, bus)
	uploadsHandler := handlers.NewUploadsHandler(uploader)
	profileHandler := handlers.NewProfileHandler(db, storageClient)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Clients read their polling cadence from here instead of hardcoding it.
	api.Get("/config", func(c *fiber.Ctx) error {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"verifyStatusIntervalMs": cfg.Polling.VerifyStatusInterval.Milliseconds(),
			"notificationIntervalMs": cfg.Polling.NotificationInterval.Milliseconds(),
		})
	})

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Post("/verify/send", authMiddleware.RequireAuth, authHandler.VerifySend)
	authRoutes.Post("/verify/confirm", authHandler.VerifyConfirm)
	authRoutes.Get("/verify/status", authMiddleware.RequireAuth, authHandler.VerifyStatus)
	authRoutes.Post("/password/forgot", authHandler.ForgotPassword)
	authRoutes.Post("/password/reset", authHandler.ResetPassword)
	authRoutes.Get("/oauth/:provider", oauthHandler.Redirect)
	authRoutes.Get("/oauth/:provider/callback", oauthHandler.Callback)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth, middleware.RequireVerified)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/counts", filesHandler.FileCounts)
	fileRoutes.Get("/version", filesHandler.Version)
	fileRoutes.Put("/:id/star", filesHandler.ToggleStar)
	fileRoutes.Put("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/trash", filesHandler.MoveToTrash)
	fileRoutes.Post("/:id/restore", filesHandler.RestoreFromTrash)
	fileRoutes.Delete("/:id", filesHandler.PermanentlyDelete)
	fileRoutes.Get("/:id/download", filesHandler.Download)
	fileRoutes.Get("/:id/preview-url", filesHandler.PreviewURL)

	api.Get("/folders", authMiddleware.RequireAuth, middleware.RequireVerified, filesHandler.ListFolders)

	uploadRoutes := api.Group("/uploads", authMiddleware.RequireAuth, middleware.RequireVerified)
	uploadRoutes.Post("/", uploadsHandler.StartBatch)
	uploadRoutes.Get("/:id", uploadsHandler.Progress)

	profileRoutes := api.Group("/profile", authMiddleware.RequireAuth)
	profileRoutes.Get("/meta", profileHandler.GetMeta)
	profileRoutes.Put("/onboarding", profileHandler.SetOnboarding)
	profileRoutes.Post("/picture", profileHandler.UploadPicture)
	profileRoutes.Get("/picture-url", profileHandler.PictureURL)

	api.Get("/notifications", authMiddleware.RequireAuth, profileHandler.Notifications)
	api.Put("/notifications/clear", authMiddleware.RequireAuth, profileHandler.ClearNotifications)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":       cfg.Server.Port,
		"address":    listenAddr,
		"body_limit": "100MB",
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
