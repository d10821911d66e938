package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/internal/db"
	"github.com/standard-site/siteindex/internal/ingest"
	"github.com/standard-site/siteindex/internal/queue"
	"github.com/standard-site/siteindex/internal/resolver"
	"github.com/standard-site/siteindex/internal/sweeper"
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
	logger.Info("Starting Siteindex Resolver")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect to the database
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

	// Wire the resolution pipeline
	store := db.NewStore(database)
	client := atproto.NewClient(cfg.Resolver.PLCDirectoryURL, cfg.Resolver.FetchTimeout)
	pds := resolver.NewPDSResolver(store, client, clock.WallClock, cfg.Resolver.PDSCacheTTL)
	pubs := resolver.NewPublicationResolver(pds, client)
	verifier := resolver.NewVerifier(cfg.Resolver.FetchTimeout)
	pipeline := resolver.NewPipeline(store, pds, pubs, verifier, client, clock.WallClock, cfg.Resolver.StaleAfter)

	consumer := queue.NewConsumer(workQueue, func(ctx context.Context, item queue.WorkItem) error {
		return pipeline.ProcessDocument(ctx, item.DID, item.Collection, item.Rkey)
	}, cfg.Resolver.MaxWorkers)

	sweep := sweeper.New(store.Documents, workQueue, clock.WallClock,
		cfg.Resolver.SweepInterval, cfg.Resolver.SweepBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sweep.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Sweeper stopped", zap.Error(err))
		}
	}()

	if cfg.Ingest.JetstreamEnabled {
		events := ingest.NewHandler(pipeline, workQueue, cfg.Resolver.Collection)
		firehose := ingest.NewJetstreamSubscriber(cfg.Ingest.JetstreamURL, cfg.Resolver.Collection, events)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := firehose.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Firehose subscriber stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("Resolver running",
		zap.Int("workers", cfg.Resolver.MaxWorkers),
		zap.Duration("sweep_interval", cfg.Resolver.SweepInterval),
		zap.Bool("jetstream", cfg.Ingest.JetstreamEnabled))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down resolver...")
	cancel()
	wg.Wait()
	logger.Info("Resolver exited")
}
