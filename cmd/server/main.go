package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/api"
	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/internal/db"
	"github.com/standard-site/siteindex/internal/ingest"
	"github.com/standard-site/siteindex/internal/queue"
	"github.com/standard-site/siteindex/internal/resolver"
	"github.com/standard-site/siteindex/pkg/config"
	"github.com/standard-site/siteindex/pkg/logging"
	"github.com/standard-site/siteindex/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Siteindex API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect to the database and ensure the schema exists
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Connect to the work queue
	workQueue, err := queue.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer workQueue.Close()

	// The webhook's inline-apply path runs the same resolution pipeline the
	// background worker does.
	store := db.NewStore(database)
	client := atproto.NewClient(cfg.Resolver.PLCDirectoryURL, cfg.Resolver.FetchTimeout)
	pds := resolver.NewPDSResolver(store, client, clock.WallClock, cfg.Resolver.PDSCacheTTL)
	pubs := resolver.NewPublicationResolver(pds, client)
	verifier := resolver.NewVerifier(cfg.Resolver.FetchTimeout)
	pipeline := resolver.NewPipeline(store, pds, pubs, verifier, client, clock.WallClock, cfg.Resolver.StaleAfter)
	events := ingest.NewHandler(pipeline, workQueue, cfg.Resolver.Collection)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(store, workQueue, events, cfg.Resolver.Collection, cfg.Ingest.WebhookSecret)
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
