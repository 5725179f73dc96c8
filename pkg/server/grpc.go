package server

import (
	"context"
	"fmt"
	"net"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer serves the standard health service for one service process.
type GRPCServer struct {
	name   string
	addr   string
	srv    *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewGRPCServer(name, addr string, logger *zap.Logger) *GRPCServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)

	hs := health.NewServer()
	hs.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	grpc_prometheus.Register(srv)

	return &GRPCServer{
		name:   name,
		addr:   addr,
		srv:    srv,
		health: hs,
		logger: logger,
	}
}

func (s *GRPCServer) SetServing() {
	s.health.SetServingStatus(s.name, grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

func (s *GRPCServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	return s.Serve(ctx, lis)
}

// Serve blocks until ctx is done, then reports NOT_SERVING and drains.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()

		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	mylogger.Info(ctx, s.logger, "gRPC server listening", zap.String("addr", lis.Addr().String()))

	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	return nil
}
