package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductAggregate holds derived rating stats, recomputed after each review
// insertion. Last writer wins: the row is never a source of truth.
type ProductAggregate struct {
	ProductID           uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	AverageRating       decimal.Decimal `gorm:"column:average_rating;type:numeric(3,2);not null"`
	ReviewCount         int             `gorm:"column:review_count;not null"`
	VerifiedReviewCount int             `gorm:"column:verified_review_count;not null"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
