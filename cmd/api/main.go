package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veracart/veracart-backend/api/routes"
	"github.com/veracart/veracart-backend/internal/contentstore"
	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/ledger"
	"github.com/veracart/veracart-backend/internal/redemption"
	"github.com/veracart/veracart-backend/internal/reviews"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
	"github.com/veracart/veracart-backend/pkg/migrate"
	"github.com/veracart/veracart-backend/pkg/pubsub"
	"github.com/veracart/veracart-backend/pkg/redis"
	"github.com/veracart/veracart-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	redemptionMetrics := metrics.NewRedemptionMetrics(registry)

	chain, err := ledger.New(cfg.Ledger, logg, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap ledger adapter", err)
		os.Exit(1)
	}

	format, err := security.NewCodeFormat(cfg.Codes.Prefix)
	if err != nil {
		logg.Error(context.Background(), "failed to build code format", err)
		os.Exit(1)
	}
	vault, err := security.NewCodeVault(cfg.Codes.VaultKey)
	if err != nil {
		logg.Error(context.Background(), "failed to build code vault", err)
		os.Exit(1)
	}

	issuerService, err := issuer.NewService(
		issuer.NewRepository(dbClient),
		format,
		vault,
		chain,
		logg,
		cfg.Codes.MaxBatchIssue,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create issuer service", err)
		os.Exit(1)
	}

	redemptionService, err := redemption.NewService(redemption.NewRepository(dbClient), format, logg, redemptionMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	contentService, err := contentstore.NewService(contentstore.NewRepository(dbClient), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create content store", err)
		os.Exit(1)
	}

	reviewsService, err := reviews.NewService(
		reviews.NewRepository(dbClient),
		redemptionService,
		contentService,
		chain,
		cfg.Reviews,
		logg,
		ledgerMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reviews service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"backend": cfg.Ledger.NormalizedBackend(),
	})
	logg.Info(ctx, "starting api server")

	deps := routes.Deps{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Issuer:  issuerService,
		Redeem:  redemptionService,
		Reviews: reviewsService,
		Metrics: registry,
	}
	if pubsubClient != nil {
		deps.PubSub = pubsubClient
	}

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutdown signal received, draining connections")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
