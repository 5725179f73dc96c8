package main

import (
	"context"
	"flag"
	"log"
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
	outbox "github.com/bsmi021/eahub-shopco/pkg/outbox/repository"
	"github.com/bsmi021/eahub-shopco/pkg/outbox/worker"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/service"
	transportHttp "github.com/bsmi021/eahub-shopco/services/catalog/internal/transport/http"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/transport/http/handler"
	productKafka "github.com/bsmi021/eahub-shopco/services/catalog/internal/transport/kafka"
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
		cfg.Service = "catalog-service"
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer kafkaProducer.Close()

	outboxRepo := outbox.NewOutboxRepository(logger)
	productService := service.NewProductService(
		repository.NewProductRepository(logger),
		bus.NewPublisher(generalDomain.SourceProducts, outboxRepo),
		pool,
		logger,
	)

	store := querystore.New(redisClient, "products", service.IndexCategory)

	queryRouter := bus.NewRouter(generalDomain.SubscriberProductsQ, kafkaProducer, logger, bus.Options{
		MaxAttempts:    cfg.Bus.MaxAttempts,
		InitialBackoff: cfg.Bus.InitialBackoff,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
	})
	productKafka.RegisterQueries(queryRouter, replication.NewProjector(store, productKafka.ProductProjection, logger))

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger, worker.Options{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	app := server.NewHTTPApp(cfg.Service, logger)
	transportHttp.RegisterRoutes(app, handler.NewProductHandler(productService, service.NewProductQueryService(store), cfg.HTTP.Timeout, logger))

	grpcServer := server.NewGRPCServer(cfg.Service, cfg.GRPC.Port, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return outboxProcessor.Start(gCtx) })
	g.Go(func() error { return queryRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return server.RunHTTP(gCtx, app, cfg.HTTP.Port, logger) })
	g.Go(func() error { return grpcServer.Run(gCtx) })
	g.Go(func() error { return metrics.Serve(gCtx, cfg.Metrics.Port, metrics.NewRegistry()) })

	grpcServer.SetServing()
	mylogger.Info(ctx, logger, "Catalog service started",
		zap.String("http", cfg.HTTP.Port),
		zap.String("grpc", cfg.GRPC.Port),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		mylogger.Error(ctx, logger, "Catalog service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
