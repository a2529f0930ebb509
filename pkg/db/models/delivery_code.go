package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veracart/veracart-backend/pkg/enums"
)

// DeliveryCode is the persisted record of a secure delivery code. The raw code
// never appears in a searchable column: lookups go through CommitmentHash and
// the raw value is kept only in encrypted form for display-back to the buyer.
// IDs are assigned in Go so the model migrates on sqlite as well as postgres.
type DeliveryCode struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CommitmentHash string          `gorm:"column:commitment_hash;uniqueIndex;not null"`
	EncryptedCode  []byte          `gorm:"column:encrypted_code;not null"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index:idx_delivery_codes_triple,unique"`
	ProductID      uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:idx_delivery_codes_triple,unique"`
	BuyerID        uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;index:idx_delivery_codes_triple,unique"`
	State          enums.CodeState `gorm:"column:state;not null;default:issued"`
	LedgerTxRef    *string         `gorm:"column:ledger_tx_ref"`
	LedgerAnchored *time.Time      `gorm:"column:ledger_anchored_at"`
	RedeemedAt     *time.Time      `gorm:"column:redeemed_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *DeliveryCode) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
