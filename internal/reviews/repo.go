package reviews

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/pagination"
)

// ReviewRow pairs a stored review with its content-addressed payload bytes.
type ReviewRow struct {
	Review  models.Review
	Payload []byte
}

type Repository interface {
	CreateWithAggregate(ctx context.Context, review *models.Review) error
	Exists(ctx context.Context, productID, buyerID uuid.UUID) (bool, error)
	HasIssuedCode(ctx context.Context, productID, buyerID uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*ReviewRow, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]ReviewRow, error)
	GetAggregate(ctx context.Context, productID uuid.UUID) (*models.ProductAggregate, error)
}

type repository struct {
	client *db.Client
}

func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

// CreateWithAggregate inserts the review and recomputes the product aggregate
// in one transaction. The unique indexes on (product, buyer) and code id are
// the final word on duplicates.
func (r *repository) CreateWithAggregate(ctx context.Context, review *models.Review) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}

	return r.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			if db.IsDuplicate(err) {
				return errors.New(errors.CodeDuplicateReview, "a review for this product already exists")
			}
			return fmt.Errorf("creating review: %w", err)
		}
		return recomputeAggregate(tx, review.ProductID)
	})
}

func recomputeAggregate(tx *gorm.DB, productID uuid.UUID) error {
	var stats struct {
		Count    int64
		Total    int64
		Verified int64
	}
	err := tx.Model(&models.Review{}).
		Where("product_id = ?", productID).
		Select(
			"COUNT(*) AS count, COALESCE(SUM(rating), 0) AS total, "+
				"COALESCE(SUM(CASE WHEN tier = ? THEN 1 ELSE 0 END), 0) AS verified",
			enums.VerificationTierLedgerConfirmed,
		).
		Scan(&stats).Error
	if err != nil {
		return fmt.Errorf("computing aggregate: %w", err)
	}

	average := decimal.Zero
	if stats.Count > 0 {
		average = decimal.NewFromInt(stats.Total).
			Div(decimal.NewFromInt(stats.Count)).
			Round(2)
	}

	aggregate := models.ProductAggregate{
		ProductID:           productID,
		AverageRating:       average,
		ReviewCount:         int(stats.Count),
		VerifiedReviewCount: int(stats.Verified),
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"average_rating", "review_count", "verified_review_count", "updated_at"}),
	}).Create(&aggregate).Error
	if err != nil {
		return fmt.Errorf("upserting aggregate: %w", err)
	}
	return nil
}

func (r *repository) Exists(ctx context.Context, productID, buyerID uuid.UUID) (bool, error) {
	var count int64
	err := r.client.DB().WithContext(ctx).
		Model(&models.Review{}).
		Where("product_id = ? AND buyer_id = ?", productID, buyerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking for existing review: %w", err)
	}
	return count > 0, nil
}

func (r *repository) HasIssuedCode(ctx context.Context, productID, buyerID uuid.UUID) (bool, error) {
	var count int64
	err := r.client.DB().WithContext(ctx).
		Model(&models.DeliveryCode{}).
		Where("product_id = ? AND buyer_id = ? AND state = ?", productID, buyerID, enums.CodeStateIssued).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking for issued code: %w", err)
	}
	return count > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*ReviewRow, error) {
	var review models.Review
	err := r.client.DB().WithContext(ctx).Where("id = ?", id).First(&review).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "review not found")
		}
		return nil, fmt.Errorf("finding review: %w", err)
	}

	rows, err := r.attachPayloads(ctx, []models.Review{review})
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]ReviewRow, error) {
	query := r.client.DB().WithContext(ctx).
		Model(&models.Review{}).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var page []models.Review
	if err := query.Find(&page).Error; err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	return r.attachPayloads(ctx, page)
}

// attachPayloads hydrates each review with its payload in a single query.
func (r *repository) attachPayloads(ctx context.Context, page []models.Review) ([]ReviewRow, error) {
	rows := make([]ReviewRow, len(page))
	if len(page) == 0 {
		return rows, nil
	}

	ids := make([]string, 0, len(page))
	for i, review := range page {
		rows[i] = ReviewRow{Review: review}
		ids = append(ids, review.ContentID)
	}

	var payloads []models.ReviewPayload
	err := r.client.DB().WithContext(ctx).
		Where("content_id IN ?", ids).
		Find(&payloads).Error
	if err != nil {
		return nil, fmt.Errorf("loading review payloads: %w", err)
	}

	byID := make(map[string][]byte, len(payloads))
	for _, payload := range payloads {
		byID[payload.ContentID] = payload.Body
	}
	for i := range rows {
		rows[i].Payload = byID[rows[i].Review.ContentID]
	}
	return rows, nil
}

func (r *repository) GetAggregate(ctx context.Context, productID uuid.UUID) (*models.ProductAggregate, error) {
	var aggregate models.ProductAggregate
	err := r.client.DB().WithContext(ctx).
		Where("product_id = ?", productID).
		First(&aggregate).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "no reviews for this product")
		}
		return nil, fmt.Errorf("loading product aggregate: %w", err)
	}
	return &aggregate, nil
}
