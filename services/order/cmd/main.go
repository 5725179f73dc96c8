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
	outboxRepository "github.com/bsmi021/eahub-shopco/pkg/outbox/repository"
	outboxUtils "github.com/bsmi021/eahub-shopco/pkg/outbox/utils"
	"github.com/bsmi021/eahub-shopco/pkg/outbox/worker"
	"github.com/bsmi021/eahub-shopco/pkg/querystore"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/order/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/order/internal/service"
	transportHttp "github.com/bsmi021/eahub-shopco/services/order/internal/transport/http"
	"github.com/bsmi021/eahub-shopco/services/order/internal/transport/http/handler"
	"github.com/bsmi021/eahub-shopco/services/order/internal/transport/kafka"
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
		cfg.Service = "order-service"
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
	publisher := bus.NewPublisher(generalDomain.SourceOrders, outboxRepo)

	sagaService := service.NewSagaService(
		pool,
		logger,
		repository.NewOrderRepository(logger),
		repository.NewBuyerRepository(logger),
		repository.NewSagaRepository(logger),
		publisher,
		cfg.Saga,
	)

	store := querystore.New(rdb, "orders", service.IndexBuyerID, service.IndexCustomerID)
	queryService := service.NewOrderQueryService(store)

	busOpts := bus.Options{
		MaxAttempts:    cfg.Bus.MaxAttempts,
		InitialBackoff: cfg.Bus.InitialBackoff,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
	}

	commandOpts := busOpts
	commandOpts.Dedup = func(ctx context.Context, consumer, eventID string, action func(ctx context.Context) error) error {
		return outboxUtils.ProcessWithDeduplication(ctx, pool, logger, consumer, eventID, action)
	}

	commandRouter := bus.NewRouter(generalDomain.SubscriberOrders, producer, logger, commandOpts)
	kafka.RegisterCommands(commandRouter, sagaService)

	queryRouter := bus.NewRouter(generalDomain.SubscriberOrdersQry, producer, logger, busOpts)
	kafka.RegisterQueries(queryRouter, replication.NewProjector(store, kafka.OrderProjection, logger))

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger, worker.Options{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	watchdog := service.NewWatchdog(sagaService, cfg.Saga.SweepInterval, logger)

	app := server.NewHTTPApp(cfg.Service, logger)
	transportHttp.RegisterRoutes(app, handler.NewOrderHandler(sagaService, queryService, cfg.HTTP.Timeout, logger))

	grpcServer := server.NewGRPCServer(cfg.Service, cfg.GRPC.Port, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return outboxProcessor.Start(gCtx) })
	g.Go(func() error { return watchdog.Start(gCtx) })
	g.Go(func() error { return commandRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return queryRouter.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return server.RunHTTP(gCtx, app, cfg.HTTP.Port, logger) })
	g.Go(func() error { return grpcServer.Run(gCtx) })
	g.Go(func() error { return metrics.Serve(gCtx, cfg.Metrics.Port, metrics.NewRegistry()) })

	grpcServer.SetServing()
	mylogger.Info(ctx, logger, "Order service started",
		zap.String("http", cfg.HTTP.Port),
		zap.String("grpc", cfg.GRPC.Port),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		mylogger.Error(ctx, logger, "Order service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down order service")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
