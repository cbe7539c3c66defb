package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// BookingServiceName is the health-check service name reported next to "".
const BookingServiceName = "shareit.booking"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer is the operations endpoint: standard health checks driven by
// the database ping.
type GRPCServer struct {
	cfg      *config.APIConfig
	pinger   Pinger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, lis net.Listener, pinger Pinger, logger *zerolog.Logger) *GRPCServer {
	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		RateLimitUnaryInterceptor(newRateLimiter(cfg.RateLimit)),
	)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(unary))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(BookingServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}

	return &GRPCServer{
		cfg:      cfg,
		pinger:   pinger,
		server:   grpcServer,
		health:   hs,
		listener: lis,
		log:      serverLogger,
	}
}

// Listen opens the configured TCP port.
func Listen(cfg *config.APIConfig) (net.Listener, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return lis, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// WatchHealth refreshes the serving status every interval until ctx is done.
func (s *GRPCServer) WatchHealth(ctx context.Context, interval time.Duration) {
	s.CheckHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth pings the database once and publishes the result.
func (s *GRPCServer) CheckHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warn().Err(err).Msg("health check failed")
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(BookingServiceName, st)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
		return
	}
}
