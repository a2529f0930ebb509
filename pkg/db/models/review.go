package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veracart/veracart-backend/pkg/enums"
)

// Review links a redeemed delivery code to a content-addressed payload and,
// when anchoring succeeded, to the ledger transaction that recorded it.
// One review per (buyer, product); one review per code.
type Review struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index;index:idx_reviews_buyer_product,unique"`
	BuyerID     uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index:idx_reviews_buyer_product,unique"`
	CodeID      uuid.UUID              `gorm:"column:code_id;type:uuid;not null;uniqueIndex"`
	Rating      int                    `gorm:"column:rating;not null"`
	ContentID   string                 `gorm:"column:content_id;not null"`
	LedgerTxRef *string                `gorm:"column:ledger_tx_ref"`
	ReviewRef   string                 `gorm:"column:review_ref;not null"`
	Tier        enums.VerificationTier `gorm:"column:tier;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
