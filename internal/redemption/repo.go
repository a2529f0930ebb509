package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
)

type Repository interface {
	FindByCommitment(ctx context.Context, commitment string) (*models.DeliveryCode, error)
	RedeemCAS(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	client *db.Client
}

func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

func (r *repository) FindByCommitment(ctx context.Context, commitment string) (*models.DeliveryCode, error) {
	var code models.DeliveryCode
	err := r.client.DB().WithContext(ctx).
		Where("commitment_hash = ?", commitment).
		First(&code).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeUnknownCode, "no code matches this commitment")
		}
		return nil, fmt.Errorf("finding code by commitment: %w", err)
	}
	return &code, nil
}

// RedeemCAS flips the code from issued to redeemed in a single conditional
// update. Exactly one concurrent caller observes true; the database row guard
// is the serialization point, not application locking.
func (r *repository) RedeemCAS(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.client.DB().WithContext(ctx).
		Model(&models.DeliveryCode{}).
		Where("id = ? AND state = ?", id, enums.CodeStateIssued).
		Updates(map[string]any{
			"state":       enums.CodeStateRedeemed,
			"redeemed_at": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("redeeming code: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
