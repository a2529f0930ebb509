package contentstore

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/errors"
)

type Repository interface {
	Save(ctx context.Context, contentID string, body []byte) error
	Load(ctx context.Context, contentID string) ([]byte, error)
}

type repository struct {
	client *db.Client
}

func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

// Save inserts the payload keyed by its content id. Re-inserting an existing
// id is a no-op, which is what makes Put idempotent.
func (r *repository) Save(ctx context.Context, contentID string, body []byte) error {
	payload := models.ReviewPayload{
		ContentID: contentID,
		Body:      body,
	}

	err := r.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&payload).Error
	if err != nil {
		return fmt.Errorf("saving review payload: %w", err)
	}
	return nil
}

func (r *repository) Load(ctx context.Context, contentID string) ([]byte, error) {
	var payload models.ReviewPayload
	err := r.client.DB().WithContext(ctx).
		Where("content_id = ?", contentID).
		First(&payload).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "review content not found")
		}
		return nil, fmt.Errorf("loading review payload: %w", err)
	}
	return payload.Body, nil
}
