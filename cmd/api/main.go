package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/habitledger/internal/api"
	"example.com/habitledger/internal/config"
	"example.com/habitledger/internal/domain"
	"example.com/habitledger/internal/logging"
	"example.com/habitledger/internal/outbox"
	"example.com/habitledger/internal/persistence/memory"
	"example.com/habitledger/internal/persistence/postgres"
	"example.com/habitledger/internal/persistence/sqlite"
	httptransport "example.com/habitledger/internal/transport/http"
)

type store interface {
	domain.Repository
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, pool, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	service := domain.NewService(repo, domain.WithLogger(logger))
	if cfg.SeedDemoHabit {
		if err := seedDemoHabit(ctx, service); err != nil {
			logger.Warn("demo seed failed", "error", err)
		}
	}

	var dispatcher *outbox.Dispatcher
	if pool != nil && cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.With("component", "outbox")))
		go dispatcher.Start(ctx)
	}

	router := mux.NewRouter()
	router.Use(httptransport.RequestLogger(logger), httptransport.Metrics, httptransport.Timeout(cfg.RequestTimeout))
	api.NewHandler(service, repo).RegisterRoutes(router)

	limiter := httptransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	handler := httptransport.CORS(cfg.CORSAllowedOrigins)(limiter.Middleware(router))
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("habit ledger listening", "address", cfg.HTTPAddress, "storage", cfg.StorageDriver, "outbox", dispatcher != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

// openStore returns the repository for the configured driver. pool is non-nil only for Postgres.
func openStore(ctx context.Context, cfg config.Config) (store, *pgxpool.Pool, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:      cfg.PostgresURL,
			MaxConns: int32(cfg.PostgresMaxConns),
			MinConns: int32(cfg.PostgresMinConns),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewRepository(pool, postgres.WithOutbox(cfg.OutboxEnabled)), pool, pool.Close, nil
	case config.DriverSQLite:
		repo, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, func() { _ = repo.Close() }, nil
	case config.DriverMemory:
		return memory.NewRepository(), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func seedDemoHabit(ctx context.Context, service *domain.Service) error {
	habits, err := service.ListHabits(ctx)
	if err != nil {
		return err
	}
	if len(habits) > 0 {
		return nil
	}
	_, err = service.CreateHabit(ctx, domain.CreateHabitInput{
		Title:    "Drink 2L water",
		WeekDays: []int{0, 1, 2, 3, 4, 5, 6},
	})
	return err
}
