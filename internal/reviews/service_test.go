package reviews

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veracart/veracart-backend/internal/contentstore"
	"github.com/veracart/veracart-backend/internal/ledger"
	"github.com/veracart/veracart-backend/internal/redemption"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/db"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/security"
)

const testVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixture struct {
	svc    Service
	client *db.Client
	chain  ledger.Adapter
	format *security.CodeFormat
	vault  *security.CodeVault
}

func newFixture(t *testing.T, chain ledger.Adapter) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.DeliveryCode{}, &models.Review{}, &models.ProductAggregate{}, &models.ReviewPayload{},
	))

	format, err := security.NewCodeFormat("VC")
	require.NoError(t, err)
	vault, err := security.NewCodeVault(testVaultKey)
	require.NoError(t, err)

	client := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test"})

	redeemer, err := redemption.NewService(redemption.NewRepository(client), format, logg, nil)
	require.NoError(t, err)
	content, err := contentstore.NewService(contentstore.NewRepository(client), logg)
	require.NoError(t, err)

	if chain == nil {
		chain = ledger.NewLocal(nil, nil)
	}

	cfg := config.ReviewsConfig{MinCommentLength: 10, MaxCommentLength: 4000, MaxImages: 6}
	svc, err := NewService(NewRepository(client), redeemer, content, chain, cfg, logg, nil)
	require.NoError(t, err)

	return &fixture{svc: svc, client: client, chain: chain, format: format, vault: vault}
}

// seedCode persists an issued code and registers its commitment on the ledger.
func (f *fixture) seedCode(t *testing.T, productID, buyerID uuid.UUID, register bool) string {
	t.Helper()

	raw, err := f.format.Generate()
	require.NoError(t, err)
	sealed, err := f.vault.Seal(raw)
	require.NoError(t, err)

	code := &models.DeliveryCode{
		ID:             uuid.New(),
		CommitmentHash: security.Commitment(raw),
		EncryptedCode:  sealed,
		OrderID:        uuid.New(),
		ProductID:      productID,
		BuyerID:        buyerID,
		State:          enums.CodeStateIssued,
	}
	require.NoError(t, f.client.DB().Create(code).Error)

	if register {
		_, err = f.chain.Submit(context.Background(), ledger.Transaction{
			Operation: ledger.OpRegisterCommitment,
			Payload:   map[string]string{"commitment": code.CommitmentHash},
		})
		require.NoError(t, err)
	}
	return raw
}

func submitParams(productID, buyerID uuid.UUID, code string) SubmitParams {
	return SubmitParams{
		ProductID: productID,
		BuyerID:   buyerID,
		Code:      code,
		Rating:    4,
		Title:     "Does what it says",
		Comment:   "Shipped quickly and matched the listing.",
	}
}

func TestSubmitReviewLedgerConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, true)

	review, err := f.svc.SubmitReview(context.Background(), submitParams(productID, buyerID, raw))
	require.NoError(t, err)

	assert.Equal(t, enums.VerificationTierLedgerConfirmed, review.Tier)
	require.NotNil(t, review.LedgerTxRef)
	assert.NotEmpty(t, review.ReviewRef)
	assert.Len(t, review.ContentID, 64)
	assert.Equal(t, "Shipped quickly and matched the listing.", review.Comment)

	// The code is consumed.
	var code models.DeliveryCode
	require.NoError(t, f.client.DB().Where("product_id = ?", productID).First(&code).Error)
	assert.Equal(t, enums.CodeStateRedeemed, code.State)
}

func TestSubmitReviewFallsBackWhenLedgerDown(t *testing.T) {
	f := newFixture(t, &downAdapter{})
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, false)

	review, err := f.svc.SubmitReview(context.Background(), submitParams(productID, buyerID, raw))
	require.NoError(t, err)

	assert.Equal(t, enums.VerificationTierLocallyAttested, review.Tier)
	assert.Nil(t, review.LedgerTxRef)
	assert.Contains(t, review.ReviewRef, "local-")

	// The redeemed code stays redeemed; the outage cost nothing but the tier.
	var code models.DeliveryCode
	require.NoError(t, f.client.DB().Where("product_id = ?", productID).First(&code).Error)
	assert.Equal(t, enums.CodeStateRedeemed, code.State)
}

func TestSubmitReviewLedgerRejectionSurfaces(t *testing.T) {
	f := newFixture(t, &rejectingAdapter{})
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, false)

	_, err := f.svc.SubmitReview(context.Background(), submitParams(productID, buyerID, raw))
	require.True(t, errors.Is(err, errors.CodeLedgerRejected))
}

func TestSubmitReviewDuplicateDoesNotBurnCode(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	first := f.seedCode(t, productID, buyerID, true)

	_, err := f.svc.SubmitReview(context.Background(), submitParams(productID, buyerID, first))
	require.NoError(t, err)

	// A second code for the same product from a repeat purchase.
	second := f.seedCode(t, productID, buyerID, true)
	_, err = f.svc.SubmitReview(context.Background(), submitParams(productID, buyerID, second))
	require.True(t, errors.Is(err, errors.CodeDuplicateReview))

	// The duplicate guard ran before redemption.
	var code models.DeliveryCode
	require.NoError(t, f.client.DB().
		Where("commitment_hash = ?", security.Commitment(second)).
		First(&code).Error)
	assert.Equal(t, enums.CodeStateIssued, code.State)
}

func TestSubmitReviewRedemptionErrorsPassThrough(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, true)

	params := submitParams(productID, buyerID, "garbage")
	_, err := f.svc.SubmitReview(context.Background(), params)
	require.True(t, errors.Is(err, errors.CodeMalformedCode))

	params = submitParams(productID, uuid.New(), raw)
	params.BuyerID = uuid.New()
	_, err = f.svc.SubmitReview(context.Background(), params)
	require.True(t, errors.Is(err, errors.CodeOwnershipMismatch))
}

func TestSubmitReviewValidation(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, true)

	params := submitParams(productID, buyerID, raw)
	params.Rating = 6
	_, err := f.svc.SubmitReview(context.Background(), params)
	require.True(t, errors.Is(err, errors.CodeValidation))

	params = submitParams(productID, buyerID, raw)
	params.Comment = "short"
	_, err = f.svc.SubmitReview(context.Background(), params)
	require.True(t, errors.Is(err, errors.CodeValidation))

	params = submitParams(productID, buyerID, raw)
	params.ImageRefs = []string{"a", "b", "c", "d", "e", "f", "g"}
	_, err = f.svc.SubmitReview(context.Background(), params)
	require.True(t, errors.Is(err, errors.CodeValidation))
}

func TestCanReview(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	ctx := context.Background()

	eligibility, err := f.svc.CanReview(ctx, productID, buyerID)
	require.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, enums.EligibilityReasonNoVerifiedPurchase, eligibility.Reason)

	raw := f.seedCode(t, productID, buyerID, true)
	eligibility, err = f.svc.CanReview(ctx, productID, buyerID)
	require.NoError(t, err)
	assert.True(t, eligibility.Eligible)
	assert.Equal(t, enums.EligibilityReasonEligible, eligibility.Reason)

	_, err = f.svc.SubmitReview(ctx, submitParams(productID, buyerID, raw))
	require.NoError(t, err)

	eligibility, err = f.svc.CanReview(ctx, productID, buyerID)
	require.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, enums.EligibilityReasonAlreadyReviewed, eligibility.Reason)
}

func TestGetReview(t *testing.T) {
	f := newFixture(t, nil)
	productID, buyerID := uuid.New(), uuid.New()
	raw := f.seedCode(t, productID, buyerID, true)
	ctx := context.Background()

	submitted, err := f.svc.SubmitReview(ctx, submitParams(productID, buyerID, raw))
	require.NoError(t, err)

	loaded, err := f.svc.GetReview(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, submitted.Comment, loaded.Comment)
	assert.Equal(t, submitted.Tier, loaded.Tier)

	_, err = f.svc.GetReview(ctx, uuid.New())
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestListReviewsPaginates(t *testing.T) {
	f := newFixture(t, nil)
	productID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		buyerID := uuid.New()
		raw := f.seedCode(t, productID, buyerID, true)
		params := submitParams(productID, buyerID, raw)
		params.Comment = fmt.Sprintf("Review number %d with enough text.", i)
		_, err := f.svc.SubmitReview(ctx, params)
		require.NoError(t, err)
	}

	page, err := f.svc.ListReviews(ctx, ListParams{ProductID: productID, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Reviews, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListReviews(ctx, ListParams{ProductID: productID, Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Reviews, 2)
	assert.Empty(t, rest.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, review := range append(page.Reviews, rest.Reviews...) {
		assert.False(t, seen[review.ID])
		seen[review.ID] = true
	}
}

func TestAggregateCountsVerifiedSeparately(t *testing.T) {
	f := newFixture(t, nil)
	productID := uuid.New()
	ctx := context.Background()

	buyer1 := uuid.New()
	raw := f.seedCode(t, productID, buyer1, true)
	params := submitParams(productID, buyer1, raw)
	params.Rating = 5
	_, err := f.svc.SubmitReview(ctx, params)
	require.NoError(t, err)

	aggregate, err := f.svc.GetAggregate(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 1, aggregate.ReviewCount)
	assert.Equal(t, 1, aggregate.VerifiedReviewCount)
	assert.Equal(t, "5", aggregate.AverageRating.String())

	// A second review lands while the ledger is down: counted, not verified.
	down := newFixtureSharing(t, f, &downAdapter{})
	buyer2 := uuid.New()
	raw2 := f.seedCode(t, productID, buyer2, false)
	params2 := submitParams(productID, buyer2, raw2)
	params2.Rating = 2
	_, err = down.SubmitReview(ctx, params2)
	require.NoError(t, err)

	aggregate, err = f.svc.GetAggregate(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, aggregate.ReviewCount)
	assert.Equal(t, 1, aggregate.VerifiedReviewCount)
	assert.Equal(t, "3.5", aggregate.AverageRating.String())
}

func TestGetAggregateUnknownProduct(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetAggregate(context.Background(), uuid.New())
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

// newFixtureSharing builds a second service over the same database with a
// different ledger adapter.
func newFixtureSharing(t *testing.T, f *fixture, chain ledger.Adapter) Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test"})
	redeemer, err := redemption.NewService(redemption.NewRepository(f.client), f.format, logg, nil)
	require.NoError(t, err)
	content, err := contentstore.NewService(contentstore.NewRepository(f.client), logg)
	require.NoError(t, err)

	cfg := config.ReviewsConfig{MinCommentLength: 10, MaxCommentLength: 4000, MaxImages: 6}
	svc, err := NewService(NewRepository(f.client), redeemer, content, chain, cfg, logg, nil)
	require.NoError(t, err)
	return svc
}

// downAdapter simulates a ledger that cannot be reached.
type downAdapter struct{}

func (d *downAdapter) Submit(context.Context, ledger.Transaction) (string, error) {
	return "", ledger.ErrUnavailable
}

func (d *downAdapter) AwaitConfirmation(context.Context, string) (*ledger.Result, error) {
	return nil, ledger.ErrUnavailable
}

func (d *downAdapter) Query(context.Context, ledger.Operation, map[string]string) (*ledger.Result, error) {
	return nil, ledger.ErrUnavailable
}

// rejectingAdapter simulates a ledger that refuses every write.
type rejectingAdapter struct{}

func (r *rejectingAdapter) Submit(context.Context, ledger.Transaction) (string, error) {
	return "", fmt.Errorf("%w: state conflict", ledger.ErrRejected)
}

func (r *rejectingAdapter) AwaitConfirmation(context.Context, string) (*ledger.Result, error) {
	return nil, fmt.Errorf("%w: state conflict", ledger.ErrRejected)
}

func (r *rejectingAdapter) Query(context.Context, ledger.Operation, map[string]string) (*ledger.Result, error) {
	return nil, fmt.Errorf("%w: state conflict", ledger.ErrRejected)
}
