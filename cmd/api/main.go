package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carrental/internal/api"
	"carrental/internal/availability"
	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/export"
	"carrental/internal/ledger"
	"carrental/internal/lock"
	"carrental/internal/logging"
	"carrental/internal/metrics"
	"carrental/internal/service"
	"carrental/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer lock.Close(redisClient)
	}
	locker := initLocker(cfg, redisClient, logger)

	bus := events.NewEventBus(logger)
	bus.SubscribeAll(func(e *events.Event) error {
		metrics.IncBookingEvent(e.Type)
		return nil
	})
	if forwarder := initAMQP(cfg, logger); forwarder != nil {
		forwarder.Attach(bus)
		defer forwarder.Close()
	}

	ledgerSvc, err := ledger.NewService(db, locker, bus, cfg.Ledger, logger)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	resolver := availability.NewResolver(db, logging.Component(logger, "availability"))
	bookings := service.NewBookingService(db, db, db, resolver, ledgerSvc, locker, bus, logger)
	guarantors := service.NewGuarantorService(db, db, db, ledgerSvc, locker, bus, cfg.Ledger.MaxGuarantors, logger)

	if cfg.Worker.Enabled {
		w := worker.NewLedgerWorker(db, ledgerSvc, redisClient, cfg.Worker, logging.Component(logger, "ledger_worker"))
		go w.Start(ctx)
	}
	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		go backups.Start(ctx)
	}
	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings:   bookings,
		Guarantors: guarantors,
		Points:     ledgerSvc,
		Statements: export.NewStatementExporter(cfg.Exports.Path, logger),
		Health:     db.PingContext,
	}, logger)

	return serve(ctx, cfg, httpServer, logger)
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

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	fleetPath := config.FleetPath()
	cars, err := config.LoadFleet(fleetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn().Str("cars_path", fleetPath).Msg("fleet file not found, serving cars already in the database")
	case err != nil:
		db.Close()
		return nil, err
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.SyncCars(ctx, cars); err != nil {
			db.Close()
			return nil, fmt.Errorf("sync fleet: %w", err)
		}
		logger.Info().Int("cars", len(cars)).Msg("fleet synced")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := lock.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := lock.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initLocker picks the booking lock: redis with in-process failover when
// redis is configured, in-process only otherwise.
func initLocker(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.Locker {
	memory := lock.NewMemoryLocker()
	if client == nil {
		return memory
	}
	lockLogger := logging.Component(logger, "lock")
	primary := lock.NewRedisLocker(client, cfg.Ledger.LockTTL, cfg.Ledger.LockWait, lockLogger)
	return lock.NewFailoverLocker(primary, memory, lockLogger)
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.Events.AMQPURL == "" {
		return nil
	}
	forwarder, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, events stay in-process")
		return nil
	}
	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("amqp forwarder attached")
	return forwarder
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, cfg *config.Config, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	if !cfg.API.HTTP.Enabled {
		logger.Warn().Msg("HTTP API disabled in config; running background jobs only")
	} else {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("carrental started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("carrental stopped")
	return nil
}
