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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fulfillment-backend/api/routes"
	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/returns"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth/session"
	"github.com/angelmondragon/fulfillment-backend/pkg/cache"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	var sessions session.AccessSessionChecker
	if cfg.JWT.RequireSession {
		manager, err := session.NewManager(redisClient)
		if err != nil {
			return fmt.Errorf("session manager: %w", err)
		}
		sessions = manager
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ordersSvc, returnsSvc, err := buildServices(cfg, logg, dbClient, redisClient, metrics.NewTransitionMetrics(promRegistry))
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	ctx = logg.WithField(ctx, "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(cfg, logg, dbClient, redisClient, sessions, ordersSvc, returnsSvc, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})),
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logg.Info(ctx, "shutting down api server")
	return srv.Shutdown(shutdownCtx)
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, transitions *metrics.TransitionMetrics) (orders.Service, returns.Service, error) {
	var (
		orderCache  *cache.Snapshots[models.Order]
		returnCache *cache.Snapshots[models.ReturnRequest]
	)
	if cfg.FeatureFlags.ReadCache {
		orderCache = cache.New[models.Order](redisClient, "order", cfg.Returns.ReadCacheTTL, logg)
		returnCache = cache.New[models.ReturnRequest](redisClient, "return_request", cfg.Returns.ReadCacheTTL, logg)
	}

	conn := dbClient.DB()
	retrier := db.NewRetrier(cfg.Store.RetryBackoff)
	tx := db.NewRetryingTx(dbClient, retrier)
	auditRepo := audit.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    ordersRepo,
		Tx:      tx,
		Audit:   auditRepo,
		Outbox:  outboxSvc,
		OTP:     security.NewOTPCodec(cfg.OTP),
		Retrier: retrier,
		Cache:   orderCache,
		Metrics: transitions,
		Logger:  logg,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("orders service: %w", err)
	}

	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repo:         returns.NewRepository(conn),
		Orders:       ordersRepo,
		Tx:           tx,
		Audit:        auditRepo,
		History:      auditRepo,
		Outbox:       outboxSvc,
		Retrier:      retrier,
		Cache:        returnCache,
		Metrics:      transitions,
		Logger:       logg,
		ReturnWindow: cfg.Returns.Window(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("returns service: %w", err)
	}
	return ordersSvc, returnsSvc, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
