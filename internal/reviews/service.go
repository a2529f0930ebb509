package reviews

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/internal/contentstore"
	"github.com/veracart/veracart-backend/internal/ledger"
	"github.com/veracart/veracart-backend/internal/redemption"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
	"github.com/veracart/veracart-backend/pkg/pagination"
)

// Service orchestrates review submission end to end: duplicate guard, code
// redemption, content storage, ledger anchoring, persistence. Ledger
// unavailability degrades the review to locally attested instead of failing
// the submission; a redeemed code is never wasted on an outage.
type Service interface {
	SubmitReview(ctx context.Context, params SubmitParams) (*ReviewDTO, error)
	CanReview(ctx context.Context, productID, buyerID uuid.UUID) (*Eligibility, error)
	GetReview(ctx context.Context, id uuid.UUID) (*ReviewDTO, error)
	ListReviews(ctx context.Context, params ListParams) (*ListResult, error)
	GetAggregate(ctx context.Context, productID uuid.UUID) (*AggregateDTO, error)
}

type service struct {
	repo     Repository
	redeemer redemption.Service
	content  contentstore.Service
	chain    ledger.Adapter
	validate *validator.Validate
	cfg      config.ReviewsConfig
	logg     *logger.Logger
	mets     *metrics.LedgerMetrics
}

func NewService(
	repo Repository,
	redeemer redemption.Service,
	content contentstore.Service,
	chain ledger.Adapter,
	cfg config.ReviewsConfig,
	logg *logger.Logger,
	mets *metrics.LedgerMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository is required")
	}
	if redeemer == nil {
		return nil, fmt.Errorf("redemption service is required")
	}
	if content == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("ledger adapter is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:     repo,
		redeemer: redeemer,
		content:  content,
		chain:    chain,
		validate: validator.New(),
		cfg:      cfg,
		logg:     logg,
		mets:     mets,
	}, nil
}

func (s *service) SubmitReview(ctx context.Context, params SubmitParams) (*ReviewDTO, error) {
	if err := s.validateSubmit(params); err != nil {
		return nil, err
	}

	ctx = s.logg.WithProductID(ctx, params.ProductID.String())
	ctx = s.logg.WithBuyerID(ctx, params.BuyerID.String())

	// Check for an existing review before touching the code. Redeeming first
	// would burn the buyer's code on a submission that can never succeed.
	exists, err := s.repo.Exists(ctx, params.ProductID, params.BuyerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to check for existing review")
	}
	if exists {
		return nil, errors.New(errors.CodeDuplicateReview, "a review for this product already exists")
	}

	redeemed, err := s.redeemer.Redeem(ctx, redemption.RedeemParams{
		RawCode:   params.Code,
		ProductID: params.ProductID,
		BuyerID:   params.BuyerID,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCommitment(ctx, redeemed.Commitment)

	content := contentstore.ReviewContent{
		ProductID: params.ProductID.String(),
		BuyerID:   params.BuyerID.String(),
		Rating:    params.Rating,
		Title:     params.Title,
		Comment:   params.Comment,
		ImageRefs: params.ImageRefs,
	}
	contentID, err := s.content.Put(ctx, content)
	if err != nil {
		return nil, err
	}

	reviewRef, txRef, tier, err := s.anchorReview(ctx, redeemed.Commitment, contentID, params.Rating)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		ProductID: params.ProductID,
		BuyerID:   params.BuyerID,
		CodeID:    redeemed.CodeID,
		Rating:    params.Rating,
		ContentID: contentID,
		ReviewRef: reviewRef,
		Tier:      tier,
	}
	if txRef != "" {
		review.LedgerTxRef = &txRef
	}

	if err := s.repo.CreateWithAggregate(ctx, review); err != nil {
		if errors.Is(err, errors.CodeDuplicateReview) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to persist review")
	}

	s.logg.Info(ctx, "review submitted")
	return toDTO(review, &content), nil
}

// anchorReview records the review on the ledger. A definitive rejection is
// surfaced; everything else falls back to local attestation.
func (s *service) anchorReview(ctx context.Context, commitment, contentID string, rating int) (reviewRef, txRef string, tier enums.VerificationTier, err error) {
	submittedRef, submitErr := s.chain.Submit(ctx, ledger.Transaction{
		Operation: ledger.OpSubmitReview,
		Payload: map[string]string{
			"commitment": commitment,
			"contentId":  contentID,
			"rating":     fmt.Sprintf("%d", rating),
		},
	})
	if submitErr != nil {
		if stderrors.Is(submitErr, ledger.ErrRejected) {
			return "", "", "", errors.Wrap(errors.CodeLedgerRejected, submitErr, "ledger rejected the review")
		}
		return s.fallback(ctx, submitErr)
	}

	result, confirmErr := s.chain.AwaitConfirmation(ctx, submittedRef)
	if confirmErr != nil {
		if stderrors.Is(confirmErr, ledger.ErrRejected) {
			return "", "", "", errors.Wrap(errors.CodeLedgerRejected, confirmErr, "ledger rejected the review")
		}
		return s.fallback(ctx, confirmErr)
	}

	event, eventErr := ledger.ExtractEvent(result, ledger.EventReviewSubmitted)
	if eventErr != nil {
		return s.fallback(ctx, eventErr)
	}

	ref := event.Attributes["reviewRef"]
	if ref == "" {
		return s.fallback(ctx, fmt.Errorf("confirmed event carries no reviewRef"))
	}
	return ref, result.TxRef, enums.VerificationTierLedgerConfirmed, nil
}

func (s *service) fallback(ctx context.Context, cause error) (string, string, enums.VerificationTier, error) {
	s.mets.IncFallback()
	s.logg.Warn(ctx, "ledger unavailable, storing review as locally attested: "+cause.Error())
	return "local-" + uuid.NewString(), "", enums.VerificationTierLocallyAttested, nil
}

func (s *service) CanReview(ctx context.Context, productID, buyerID uuid.UUID) (*Eligibility, error) {
	if productID == uuid.Nil || buyerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "productId and buyerId are required")
	}

	reviewed, err := s.repo.Exists(ctx, productID, buyerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to check for existing review")
	}
	if reviewed {
		return &Eligibility{Eligible: false, Reason: enums.EligibilityReasonAlreadyReviewed}, nil
	}

	hasCode, err := s.repo.HasIssuedCode(ctx, productID, buyerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to check for issued code")
	}
	if !hasCode {
		return &Eligibility{Eligible: false, Reason: enums.EligibilityReasonNoVerifiedPurchase}, nil
	}
	return &Eligibility{Eligible: true, Reason: enums.EligibilityReasonEligible}, nil
}

func (s *service) GetReview(ctx context.Context, id uuid.UUID) (*ReviewDTO, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load review")
	}
	return hydrate(row)
}

func (s *service) ListReviews(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ProductID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "productId is required")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "invalid cursor")
	}

	// Fetch one extra row to learn whether another page exists.
	rows, err := s.repo.ListByProduct(ctx, params.ProductID, limit+1, cursor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to list reviews")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1].Review
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	result := &ListResult{Reviews: make([]ReviewDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		dto, err := hydrate(&rows[i])
		if err != nil {
			return nil, err
		}
		result.Reviews = append(result.Reviews, *dto)
	}
	return result, nil
}

func (s *service) GetAggregate(ctx context.Context, productID uuid.UUID) (*AggregateDTO, error) {
	if productID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "productId is required")
	}

	aggregate, err := s.repo.GetAggregate(ctx, productID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load aggregate")
	}
	return &AggregateDTO{
		ProductID:           aggregate.ProductID,
		AverageRating:       aggregate.AverageRating,
		ReviewCount:         aggregate.ReviewCount,
		VerifiedReviewCount: aggregate.VerifiedReviewCount,
		UpdatedAt:           aggregate.UpdatedAt,
	}, nil
}

func (s *service) validateSubmit(params SubmitParams) error {
	if err := s.validate.Struct(params); err != nil {
		return errors.Wrap(errors.CodeValidation, err, "invalid review submission").
			WithDetails(err.Error())
	}
	if length := len([]rune(params.Comment)); length < s.cfg.MinCommentLength || length > s.cfg.MaxCommentLength {
		return errors.New(errors.CodeValidation,
			fmt.Sprintf("comment must be between %d and %d characters", s.cfg.MinCommentLength, s.cfg.MaxCommentLength))
	}
	if s.cfg.MaxImages > 0 && len(params.ImageRefs) > s.cfg.MaxImages {
		return errors.New(errors.CodeValidation,
			fmt.Sprintf("at most %d images are allowed", s.cfg.MaxImages))
	}
	return nil
}

func hydrate(row *ReviewRow) (*ReviewDTO, error) {
	var content contentstore.ReviewContent
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &content); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "stored review content is corrupt")
		}
	}
	return toDTO(&row.Review, &content), nil
}

func toDTO(review *models.Review, content *contentstore.ReviewContent) *ReviewDTO {
	return &ReviewDTO{
		ID:          review.ID,
		ProductID:   review.ProductID,
		BuyerID:     review.BuyerID,
		Rating:      review.Rating,
		Title:       content.Title,
		Comment:     content.Comment,
		ImageRefs:   content.ImageRefs,
		ContentID:   review.ContentID,
		ReviewRef:   review.ReviewRef,
		LedgerTxRef: review.LedgerTxRef,
		Tier:        review.Tier,
		CreatedAt:   review.CreatedAt,
	}
}
