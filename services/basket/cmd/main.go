package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/config"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	kafka2 "github.com/bsmi021/eahub-shopco/pkg/kafka"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/server"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/repository"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/service"
	transportHttp "github.com/bsmi021/eahub-shopco/services/basket/internal/transport/http"
	"github.com/bsmi021/eahub-shopco/services/basket/internal/transport/http/handler"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.MustLoad()
	if cfg.Service == "" {
		cfg.Service = "basket-service"
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer kafkaProducer.Close()

	basketService := service.NewBasketService(
		repository.NewBasketRepository(redisClient, cfg.Basket.TTL, logger),
		bus.NewDirectPublisher(generalDomain.SourceBasket, kafkaProducer, logger),
		logger,
	)

	app := server.NewHTTPApp(cfg.Service, logger)
	transportHttp.RegisterRoutes(app, handler.NewBasketHandler(basketService, cfg.HTTP.Timeout, logger))

	grpcServer := server.NewGRPCServer(cfg.Service, cfg.GRPC.Port, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.RunHTTP(gCtx, app, cfg.HTTP.Port, logger) })
	g.Go(func() error { return grpcServer.Run(gCtx) })
	g.Go(func() error { return metrics.Serve(gCtx, cfg.Metrics.Port, metrics.NewRegistry()) })

	grpcServer.SetServing()
	mylogger.Info(ctx, logger, "Basket service started",
		zap.String("http", cfg.HTTP.Port),
		zap.String("grpc", cfg.GRPC.Port),
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		mylogger.Error(ctx, logger, "Basket service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
