package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shareit/internal/api"
	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/logging"
	"shareit/internal/metrics"
	"shareit/internal/repository"
	"shareit/internal/service"
	"shareit/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const healthInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "api-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, base, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := initCache(cfg, redisClient, base)

	bus := events.NewEventBus()
	if err := startRelay(ctx, cfg, db, bus, base, logger); err != nil {
		return err
	}

	bookings := service.NewBookingService(db, db, db, cache, bus, domain.SystemClock{}, cfg.Booking, base)

	if db.Driver() == config.DriverSQLite {
		backups, err := database.NewBackupService(db, cfg.Backup, logging.Component(base, "backup"))
		if err != nil {
			return err
		}
		go backups.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	handler := api.NewHandler(bookings, db, cfg.API, cfg.Booking, base)
	httpServer := api.NewHTTPServer(cfg.API, handler.Routes(), base)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		lis, err := api.Listen(&cfg.API)
		if err != nil {
			return err
		}
		grpcServer = api.NewGRPCServer(&cfg.API, lis, db, base)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, base, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database, logging.Component(base, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return nil, err
	}

	if cfg.Seed.Path == "" {
		return db, nil
	}
	seed, err := config.LoadSeed(cfg.Seed.Path)
	if err != nil {
		_ = db.Close()
		logger.Error().Err(err).Str("seed_path", cfg.Seed.Path).Msg("load seed")
		return nil, err
	}
	if err := db.SyncCatalog(ctx, seed.Users, seed.Items); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sync catalog: %w", err)
	}
	logger.Info().Int("users", len(seed.Users)).Int("items", len(seed.Items)).Msg("catalog synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initCache(cfg *config.Config, redisClient *redis.Client, base *zerolog.Logger) domain.BookingCache {
	memory := repository.NewMemoryBookingCache(cfg.Booking.CacheTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisBookingCache(redisClient, cfg.Booking.CacheTTL)
	return repository.NewFailoverBookingCache(primary, memory, logging.Component(base, "cache"))
}

func startRelay(ctx context.Context, cfg *config.Config, db *database.DB, bus *events.EventBus, base, logger *zerolog.Logger) error {
	if !cfg.Kafka.Enabled {
		logger.Info().Msg("kafka disabled, booking events stay in the outbox")
		return nil
	}

	writer := worker.NewKafkaWriter(cfg.Kafka)
	relay := worker.NewEventRelay(db, writer, worker.RetryPolicy{}, cfg.Kafka.BatchSize, base)
	bus.Subscribe(relay.Handle, events.BookingEventTypes...)

	go func() {
		relay.Start(ctx)
		if err := writer.Close(); err != nil {
			logger.Warn().Err(err).Msg("close kafka writer")
		}
	}()

	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event relay started")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go grpcServer.WatchHealth(ctx, healthInterval)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
