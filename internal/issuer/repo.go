package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, code *models.DeliveryCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryCode, error)
	FindByTriple(ctx context.Context, orderID, productID, buyerID uuid.UUID) (*models.DeliveryCode, error)
	MarkAnchored(ctx context.Context, id uuid.UUID, txRef string, anchoredAt time.Time) error
}

type repository struct {
	client *db.Client
}

func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

func (r *repository) Create(ctx context.Context, code *models.DeliveryCode) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	err := r.client.DB().WithContext(ctx).Create(code).Error
	if err != nil {
		return fmt.Errorf("creating delivery code: %w", err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryCode, error) {
	var code models.DeliveryCode
	err := r.client.DB().WithContext(ctx).
		Where("id = ?", id).
		First(&code).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "delivery code not found")
		}
		return nil, fmt.Errorf("finding delivery code: %w", err)
	}
	return &code, nil
}

func (r *repository) FindByTriple(ctx context.Context, orderID, productID, buyerID uuid.UUID) (*models.DeliveryCode, error) {
	var code models.DeliveryCode
	err := r.client.DB().WithContext(ctx).
		Where("order_id = ? AND product_id = ? AND buyer_id = ?", orderID, productID, buyerID).
		First(&code).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "delivery code not found")
		}
		return nil, fmt.Errorf("finding delivery code by purchase: %w", err)
	}
	return &code, nil
}

// MarkAnchored records the ledger registration for a code. It only fills an
// empty ref: re-anchoring never overwrites the first confirmation.
func (r *repository) MarkAnchored(ctx context.Context, id uuid.UUID, txRef string, anchoredAt time.Time) error {
	result := r.client.DB().WithContext(ctx).
		Model(&models.DeliveryCode{}).
		Where("id = ? AND ledger_tx_ref IS NULL", id).
		Updates(map[string]any{
			"ledger_tx_ref":      txRef,
			"ledger_anchored_at": anchoredAt,
		})
	if result.Error != nil {
		return fmt.Errorf("anchoring delivery code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either the code is unknown or it is already anchored.
		var existing models.DeliveryCode
		err := r.client.DB().WithContext(ctx).Where("id = ?", id).First(&existing).Error
		if err != nil {
			if db.IsNotFound(err) {
				return errors.New(errors.CodeNotFound, "delivery code not found")
			}
			return fmt.Errorf("anchoring delivery code: %w", err)
		}
	}
	return nil
}
