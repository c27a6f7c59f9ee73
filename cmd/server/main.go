package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"go-onboard/internal/api/handler"
	"go-onboard/internal/config"
	"go-onboard/internal/coordinator"
	"go-onboard/internal/core/ports"
	"go-onboard/internal/core/postgres/repository"
	"go-onboard/internal/engine"
	"go-onboard/internal/infrastructure/memory"
	"go-onboard/internal/infrastructure/redis"
	"go-onboard/internal/metrics"
	"go-onboard/internal/registry"
	"go-onboard/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Configuration and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// 2. Step catalog
	reg, err := registry.LoadFile(cfg.Registry.File)
	if err != nil {
		return err
	}
	logger.Info("step registry loaded", "steps", reg.Len(), "file", cfg.Registry.File)

	// 3. Redis connection, shared by the redis store and the event bus
	var rdb *goredis.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.Events.Enabled {
		rdb, err = redis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.PoolSize)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// 4. Progress store
	store, err := newStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	logger.Info("progress store ready", "backend", cfg.Store.Backend)

	// 5. Engine, metrics and the optional event bus
	m := metrics.New(prometheus.DefaultRegisterer)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithStoreTimeout(cfg.Store.Timeout),
		engine.WithGates(engine.DefaultGates()),
	}
	if cfg.Events.Enabled {
		bus := redis.NewRedisEventBus(rdb, logger)
		opts = append(opts, engine.WithEventBus(bus))

		coord := coordinator.NewCoordinator(bus, logger, m)
		go func() {
			if err := coord.Start(ctx); err != nil {
				logger.Error("coordinator stopped", "error", err)
			}
		}()
	}

	eng, err := engine.New(reg, store, opts...)
	if err != nil {
		return err
	}
	go eng.RunEvictor(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)

	// 6. HTTP routes
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestLogger(logger))

	onboardingHandler := handler.NewOnboardingHandler(service.NewOnboardingService(eng), logger)
	onboardingHandler.Register(router.Group("/api/v1"))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	// 7. Serve until signalled
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}

func newStore(ctx context.Context, cfg *config.Config, rdb *goredis.Client) (ports.ProgressStore, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if err := repository.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewProgressRepository(db), nil
	case config.BackendRedis:
		return redis.NewRedisProgressStore(rdb), nil
	default:
		return memory.NewProgressStore(), nil
	}
}
