package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/config"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	kafka2 "github.com/bsmi021/eahub-shopco/pkg/kafka"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	outboxRepository "github.com/bsmi021/eahub-shopco/pkg/outbox/repository"
	outboxUtils "github.com/bsmi021/eahub-shopco/pkg/outbox/utils"
	"github.com/bsmi021/eahub-shopco/pkg/outbox/worker"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/service"
	transportHttp "github.com/bsmi021/eahub-shopco/services/warehouse/internal/transport/http"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/transport/http/handler"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/transport/kafka"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.MustLoad()
	if cfg.Service == "" {
		cfg.Service = "warehouse-service"
	}

	if err := db.Migrate(cfg.Postgres.MigrationsDir, cfg.Postgres.URL); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	if *migrateOnly {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerOptions())
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	producer, err := kafka2.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer producer.Close()

	outboxRepo := outboxRepository.NewOutboxRepository(logger)
	itemPublisher := bus.NewPublisher(generalDomain.SourceInventoryItems, outboxRepo)
	sitePublisher := bus.NewPublisher(generalDomain.SourceSites, outboxRepo)

	seed := uint64(time.Now().UnixNano())
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	siteRepo := repository.NewSiteRepository(logger)

	inventoryService := service.NewInventoryService(
		pool,
		logger,
		repository.NewInventoryRepository(logger),
		siteRepo,
		repository.NewDebitRepository(logger),
		itemPublisher,
		cfg.Inventory,
		rng,
	)
	siteService := service.NewSiteService(pool, logger, siteRepo, sitePublisher)

	inventoryStore := querystore.New(rdb, "inventory", service.IndexProductID, service.IndexSiteID)
	siteStore := querystore.New(rdb, "sites")

	busOpts := bus.Options{
		MaxAttempts:    cfg.Bus.MaxAttempts,
		InitialBackoff: cfg.Bus.InitialBackoff,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
	}

	commandOpts := busOpts
	commandOpts.Dedup = func(ctx context.Context, consumer, eventID string, action func(ctx context.Context) error) error {
		return outboxUtils.ProcessWithDeduplication(ctx, pool, logger, consumer, eventID, action)
	}

	commandRouter := bus.NewRouter(generalDomain.SubscriberInventory, producer, logger, commandOpts)
	kafka.RegisterCommands(commandRouter, inventoryService)

	itemQueryRouter := bus.NewRouter(generalDomain.SubscriberItemsQry, producer, logger, busOpts)
	kafka.RegisterInventoryQueries(itemQueryRouter, replication.NewProjector(inventoryStore, kafka.InventoryProjection, logger))

	siteQueryRouter := bus.NewRouter(generalDomain.SubscriberSitesQry, producer, logger, busOpts)
	kafka.RegisterSiteQueries(siteQueryRouter, replication.NewProjector(siteStore, kafka.SiteProjection, logger))

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger, worker.Options{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	app := server.NewHTTPApp(cfg.Service, logger)
	transportHttp.RegisterRoutes(app,
		handler.NewInventoryHandler(inventoryService, service.NewInventoryQueryService(inventoryStore), cfg.HTTP.Timeout, logger),
		handler.NewSiteHandler(siteService, service.NewSiteQueryService(siteStore), cfg.HTTP.Timeout, logger),
	)

	grpcServer := server.NewGRPCServer(cfg.Service, cfg.GRPC.Port, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return outboxProcessor.Start(gCtx) })
	g.Go(func() error { return commandRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return itemQueryRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return siteQueryRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return server.RunHTTP(gCtx, app, cfg.HTTP.Port, logger) })
	g.Go(func() error { return grpcServer.Run(gCtx) })
	g.Go(func() error { return metrics.Serve(gCtx, cfg.Metrics.Port, metrics.NewRegistry()) })

	grpcServer.SetServing()
	mylogger.Info(ctx, logger, "Warehouse service started",
		zap.String("http", cfg.HTTP.Port),
		zap.String("grpc", cfg.GRPC.Port),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		mylogger.Error(ctx, logger, "Warehouse service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down warehouse service")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
