package migrate

import (
	"context"
	"fmt"

	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/logger"
)

// MaybeRunDev applies the schema automatically when the app is running in dev
// mode and the feature flag is enabled. Production deploys run goose via
// cmd/migrate instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	logg.Info(ctx, "running dev auto-migration")

	err := client.DB().WithContext(ctx).AutoMigrate(
		&models.DeliveryCode{},
		&models.Review{},
		&models.ProductAggregate{},
		&models.ReviewPayload{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	logg.Info(ctx, "dev auto-migration completed")
	return nil
}
