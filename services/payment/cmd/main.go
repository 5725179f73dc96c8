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
	outboxUtils "github.com/bsmi021/eahub-shopco/pkg/outbox/utils"
	"github.com/bsmi021/eahub-shopco/pkg/outbox/worker"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/service"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/transport/kafka"
	"github.com/joho/godotenv"
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
		cfg.Service = "payment-service"
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
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerOptions())
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Error creating postgres DB: %v", err)
	}
	defer pool.Close()

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer kafkaProducer.Close()

	outboxRepo := outbox.NewOutboxRepository(logger)
	paymentService := service.NewPaymentService(
		pool,
		repository.NewPaymentRepository(logger),
		bus.NewPublisher(generalDomain.SourcePayments, outboxRepo),
		cfg.Payment,
		logger,
	)

	router := bus.NewRouter(generalDomain.SubscriberPayments, kafkaProducer, logger, bus.Options{
		MaxAttempts:    cfg.Bus.MaxAttempts,
		InitialBackoff: cfg.Bus.InitialBackoff,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
		Dedup: func(ctx context.Context, consumer, eventID string, action func(ctx context.Context) error) error {
			return outboxUtils.ProcessWithDeduplication(ctx, pool, logger, consumer, eventID, action)
		},
	})
	kafka.RegisterCommands(router, paymentService)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger, worker.Options{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	grpcServer := server.NewGRPCServer(cfg.Service, cfg.GRPC.Port, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return outboxProcessor.Start(gCtx) })
	g.Go(func() error { return router.Run(gCtx, cfg.Kafka.Brokers) })
	g.Go(func() error { return grpcServer.Run(gCtx) })
	g.Go(func() error { return metrics.Serve(gCtx, cfg.Metrics.Port, metrics.NewRegistry()) })

	grpcServer.SetServing()
	mylogger.Info(ctx, logger, "Payment service started!", zap.Bool("approve_payments", cfg.Payment.Succeed))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		mylogger.Error(ctx, logger, "Payment service stopped with error", zap.Error(err))
	}

	shutdownCtx, exit := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer exit()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Error(shutdownCtx, logger, "Error shutting down telemetry", zap.Error(err))
	}
}
