package issuer

import (
	"time"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/pkg/enums"
)

// IssueParams identifies the verified purchase a code is bound to.
type IssueParams struct {
	OrderID   uuid.UUID `json:"orderId" validate:"required"`
	ProductID uuid.UUID `json:"productId" validate:"required"`
	BuyerID   uuid.UUID `json:"buyerId" validate:"required"`
}

// IssuedCode is what the caller gets back after issuance. RawCode is the only
// place the plaintext code ever leaves the service; it is delivered to the
// buyer and otherwise stays sealed in the vault.
type IssuedCode struct {
	ID             uuid.UUID       `json:"id"`
	RawCode        string          `json:"rawCode"`
	Commitment     string          `json:"commitment"`
	OrderID        uuid.UUID       `json:"orderId"`
	ProductID      uuid.UUID       `json:"productId"`
	BuyerID        uuid.UUID       `json:"buyerId"`
	State          enums.CodeState `json:"state"`
	LedgerTxRef    *string         `json:"ledgerTxRef,omitempty"`
	LedgerAnchored *time.Time      `json:"ledgerAnchoredAt,omitempty"`
	AlreadyIssued  bool            `json:"alreadyIssued"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// BatchResult pairs each successfully issued code with its request index so
// callers can correlate partial failures.
type BatchResult struct {
	Index int        `json:"index"`
	Code  IssuedCode `json:"code"`
}
