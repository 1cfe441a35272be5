// Command plugmart runs the plugin marketplace API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/cache"
	"github.com/plugmart/plugmart/pkg/catalog"
	"github.com/plugmart/plugmart/pkg/config"
	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/download"
	"github.com/plugmart/plugmart/pkg/entitlement"
	"github.com/plugmart/plugmart/pkg/httputil"
	"github.com/plugmart/plugmart/pkg/ledger"
	"github.com/plugmart/plugmart/pkg/middleware"
	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/ratings"
	"github.com/plugmart/plugmart/pkg/storage"
	"github.com/plugmart/plugmart/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.WithError(err).Error("failed to apply database schema")
		os.Exit(1)
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("redis cache enabled")
	}

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to initialize artifact storage")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Services
	authStore := auth.NewStore(db)
	authService := auth.NewService(authStore, logger)
	catalogService := catalog.NewService(catalog.NewStore(db), artifacts, logger, metrics)
	ledgerService := ledger.NewService(ledger.NewStore(db), catalogService, logger, metrics)
	ratingsService := ratings.NewService(ratings.NewStore(db), catalogService, redisClient, logger, metrics)

	var tokens download.TokenStore
	if redisClient != nil {
		tokens = download.NewRedisTokenStore(redisClient)
	} else {
		tokens = download.NewMemoryTokenStore()
		logger.Warn("redis disabled; download tokens are per-instance")
	}
	downloadService := download.NewService(db, tokens, catalogService, ledgerService, artifacts, logger, metrics)
	entitlementService := entitlement.NewService(ledgerService, ratingsService, downloadService)
	usersService := users.NewService(authStore, logger)

	// Handlers
	authHandlers := auth.NewHandlers(authService)
	catalogHandlers := catalog.NewHandlers(catalogService)
	entitlementHandlers := entitlement.NewHandlers(entitlementService)
	usersHandlers := users.NewHandlers(usersService)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	// Protected routes first so literal paths like /plugins/my-plugins
	// are matched before /plugins/{id}
	rateLimiter := middleware.NewRateLimiter(300, time.Minute)
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(authService), rateLimiter.Middleware)
	authHandlers.RegisterProtectedRoutes(protected)
	catalogHandlers.RegisterProtectedRoutes(protected)
	entitlementHandlers.RegisterProtectedRoutes(protected)
	usersHandlers.RegisterProtectedRoutes(protected)

	authHandlers.RegisterPublicRoutes(api)
	catalogHandlers.RegisterPublicRoutes(api)
	entitlementHandlers.RegisterPublicRoutes(api)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxUploadBytes),
	)

	var handler http.Handler = chain(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "plugmart-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes and scrapers
	// stay off the public listener
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	observability.RegisterMetricsEndpoint(healthMux, registry)

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	if providers != nil {
		shutdown.RegisterShutdownFunc(providers.Shutdown)
	}

	if path := os.Getenv("PLUGMART_CONFIG_FILE"); path != "" {
		watcher, err := config.NewWatcher(path, func(_ *config.Config) {
			logger.WithField("path", path).Info("configuration reloaded; restart to apply server settings")
		})
		if err != nil {
			logger.WithError(err).Warn("config file watching unavailable")
		} else {
			shutdown.RegisterShutdownFunc(func(context.Context) error { return watcher.Close() })
		}
	}

	// Feed the connection pool gauges
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				metrics.CollectDBStats(stats.OpenConnections, stats.Idle)
			case <-statsCtx.Done():
				return
			}
		}
	}()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}
