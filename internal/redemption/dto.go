package redemption

import (
	"time"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/pkg/enums"
)

// RedeemParams carries the raw code as presented by the buyer plus the
// purchase context it must be bound to.
type RedeemParams struct {
	RawCode   string    `json:"code" validate:"required"`
	ProductID uuid.UUID `json:"productId" validate:"required"`
	BuyerID   uuid.UUID `json:"buyerId" validate:"required"`
}

// RedeemedCode is the proof of a successful single-use redemption.
type RedeemedCode struct {
	CodeID     uuid.UUID `json:"codeId"`
	Commitment string    `json:"commitment"`
	OrderID    uuid.UUID `json:"orderId"`
	ProductID  uuid.UUID `json:"productId"`
	BuyerID    uuid.UUID `json:"buyerId"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

// VerifyParams carries a code to check without consuming it. The purchase
// identifiers are optional: when present, binding is verified too.
type VerifyParams struct {
	RawCode   string    `json:"code" validate:"required"`
	ProductID uuid.UUID `json:"productId"`
	BuyerID   uuid.UUID `json:"buyerId"`
}

// VerifyResult reports what a non-consuming check found. Valid is false
// whenever Reason is set.
type VerifyResult struct {
	Valid  bool            `json:"valid"`
	State  enums.CodeState `json:"state,omitempty"`
	Reason string          `json:"reason,omitempty"`
}
