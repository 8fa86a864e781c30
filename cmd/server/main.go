package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/config"
	"pony-chat-admin/backend/pkg/di"
	"pony-chat-admin/backend/pkg/logger"
	"pony-chat-admin/backend/pkg/router"
	"pony-chat-admin/backend/pkg/secrets"
	"pony-chat-admin/backend/shared/observability"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logConfig.Level = level
	}
	logConfig.JSON = os.Getenv("LOG_FORMAT") != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting chat admin backend", "version", os.Getenv("APP_VERSION"))

	// Secrets manager falls back to environment variables when Vault is disabled
	if err := secrets.Init(log); err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
	}

	shutdownTracing := observability.SetupTracing("pony-chat-admin")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&models.Message{}, &models.User{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	// Indexes backing the per-platform listing and incremental sync queries
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_pony_messages_platform_created ON pony_messages(platform, created_at)").Error; err != nil {
		log.LogError(err, "Failed to create message index", "index", "idx_pony_messages_platform_created")
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_pony_messages_sender ON pony_messages(sender)").Error; err != nil {
		log.LogError(err, "Failed to create message index", "index", "idx_pony_messages_sender")
	}

	// Initialize dependency injection container
	diConfig := di.DefaultConfig()
	diConfig.LoggerConfig = logConfig
	if secret := secrets.GetSecretWithDefault(context.Background(), "JWT_SECRET", diConfig.JWTSecret); secret != "" {
		diConfig.JWTSecret = secret
	}

	container, err := di.New(db, diConfig)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	// Start the unread-count sync loops
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	go container.UnreadSyncer.Run(syncCtx)

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes()

	port := config.Get().Server.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	stopSync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
