package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/veracart/veracart-backend/internal/deliveries"
	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/ledger"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/migrate"
	"github.com/veracart/veracart-backend/pkg/pubsub"
	"github.com/veracart/veracart-backend/pkg/security"
)

// The delivered worker consumes order-delivered events and issues one
// delivery code per purchased item.
func main() {
	logg := logger.New(logger.Options{ServiceName: "delivered-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "delivered-worker",
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

	chain, err := ledger.New(cfg.Ledger, logg, nil)
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	handler, err := deliveries.NewHandler(issuerService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create deliveries handler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.DeliveredSubscription,
	})
	logg.Info(ctx, "starting delivered worker")

	if err := handler.Run(ctx, pubsubClient.DeliveredSubscription()); err != nil && ctx.Err() == nil {
		logg.Error(ctx, "delivered worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "delivered worker shutting down gracefully")
}
