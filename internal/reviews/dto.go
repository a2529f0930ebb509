package reviews

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veracart/veracart-backend/pkg/enums"
)

// SubmitParams is everything a buyer sends to post a review: the authored
// content plus the delivery code proving the purchase.
type SubmitParams struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	BuyerID   uuid.UUID `json:"buyerId" validate:"required"`
	Code      string    `json:"code" validate:"required"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Title     string    `json:"title" validate:"omitempty,max=200"`
	Comment   string    `json:"comment" validate:"required"`
	ImageRefs []string  `json:"imageRefs" validate:"omitempty,dive,required"`
}

// ReviewDTO is the hydrated review: the stored row joined with its
// content-addressed payload.
type ReviewDTO struct {
	ID          uuid.UUID              `json:"id"`
	ProductID   uuid.UUID              `json:"productId"`
	BuyerID     uuid.UUID              `json:"buyerId"`
	Rating      int                    `json:"rating"`
	Title       string                 `json:"title,omitempty"`
	Comment     string                 `json:"comment"`
	ImageRefs   []string               `json:"imageRefs,omitempty"`
	ContentID   string                 `json:"contentId"`
	ReviewRef   string                 `json:"reviewRef"`
	LedgerTxRef *string                `json:"ledgerTxRef,omitempty"`
	Tier        enums.VerificationTier `json:"verificationTier"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Eligibility is the answer to "can this buyer review this product".
type Eligibility struct {
	Eligible bool                    `json:"eligible"`
	Reason   enums.EligibilityReason `json:"reason"`
}

// ListParams pages through a product's reviews, newest first.
type ListParams struct {
	ProductID uuid.UUID
	Limit     int
	Cursor    string
}

// ListResult carries one page and the cursor for the next.
type ListResult struct {
	Reviews    []ReviewDTO `json:"reviews"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// AggregateDTO is the derived rating summary for a product.
type AggregateDTO struct {
	ProductID           uuid.UUID       `json:"productId"`
	AverageRating       decimal.Decimal `json:"averageRating"`
	ReviewCount         int             `json:"reviewCount"`
	VerifiedReviewCount int             `json:"verifiedReviewCount"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}
