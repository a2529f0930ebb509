package models_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

// The schema must migrate on sqlite, not just postgres: the dev AutoMigrate
// path and every repository fixture depend on it. Column defaults that only
// postgres understands would break that.
func TestAutoMigrateAllModels(t *testing.T) {
	conn := openTestDB(t)

	require.NoError(t, conn.AutoMigrate(
		&models.DeliveryCode{},
		&models.Review{},
		&models.ProductAggregate{},
		&models.ReviewPayload{},
	))
}

func TestDeliveryCodeIDAssignedOnCreate(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.AutoMigrate(&models.DeliveryCode{}))

	code := &models.DeliveryCode{
		CommitmentHash: "c0ffee",
		EncryptedCode:  []byte{0x01},
		OrderID:        uuid.New(),
		ProductID:      uuid.New(),
		BuyerID:        uuid.New(),
		State:          enums.CodeStateIssued,
	}
	require.NoError(t, conn.Create(code).Error)
	assert.NotEqual(t, uuid.Nil, code.ID)

	var loaded models.DeliveryCode
	require.NoError(t, conn.First(&loaded, "id = ?", code.ID).Error)
	assert.Equal(t, code.CommitmentHash, loaded.CommitmentHash)
}

func TestDeliveryCodeKeepsPresetID(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.AutoMigrate(&models.DeliveryCode{}))

	id := uuid.New()
	code := &models.DeliveryCode{
		ID:             id,
		CommitmentHash: "deadbeef",
		EncryptedCode:  []byte{0x02},
		OrderID:        uuid.New(),
		ProductID:      uuid.New(),
		BuyerID:        uuid.New(),
		State:          enums.CodeStateIssued,
	}
	require.NoError(t, conn.Create(code).Error)
	assert.Equal(t, id, code.ID)
}

func TestReviewIDAssignedOnCreate(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.AutoMigrate(&models.Review{}))

	review := &models.Review{
		ProductID: uuid.New(),
		BuyerID:   uuid.New(),
		CodeID:    uuid.New(),
		Rating:    5,
		ContentID: "abc123",
		ReviewRef: "local-" + uuid.NewString(),
		Tier:      enums.VerificationTierLocallyAttested,
	}
	require.NoError(t, conn.Create(review).Error)
	assert.NotEqual(t, uuid.Nil, review.ID)
}
