package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
	"github.com/veracart/veracart-backend/pkg/security"
)

// Service enforces single-use redemption of delivery codes. The check order
// is fixed: format first (no I/O on malformed input), then commitment lookup,
// then purchase binding, then the atomic state flip.
type Service interface {
	Redeem(ctx context.Context, params RedeemParams) (*RedeemedCode, error)
	Verify(ctx context.Context, params VerifyParams) (*VerifyResult, error)
}

type service struct {
	repo   Repository
	format *security.CodeFormat
	logg   *logger.Logger
	mets   *metrics.RedemptionMetrics
}

func NewService(repo Repository, format *security.CodeFormat, logg *logger.Logger, mets *metrics.RedemptionMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("redemption repository is required")
	}
	if format == nil {
		return nil, fmt.Errorf("code format is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, format: format, logg: logg, mets: mets}, nil
}

func (s *service) Redeem(ctx context.Context, params RedeemParams) (*RedeemedCode, error) {
	code, err := s.resolve(ctx, params)
	if err != nil {
		s.mets.IncOutcome(outcomeFor(err))
		return nil, err
	}

	redeemedAt := time.Now().UTC()
	won, err := s.repo.RedeemCAS(ctx, code.ID, redeemedAt)
	if err != nil {
		s.mets.IncOutcome("error")
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to redeem code")
	}
	if !won {
		// Lost the race: another request consumed the code between our read
		// and the conditional update.
		s.mets.IncOutcome(outcomeAlreadyRedeemed)
		return nil, errors.New(errors.CodeAlreadyRedeemed, "code was already redeemed")
	}

	ctx = s.logg.WithCommitment(ctx, code.CommitmentHash)
	s.logg.Info(ctx, "delivery code redeemed")
	s.mets.IncOutcome("redeemed")

	return &RedeemedCode{
		CodeID:     code.ID,
		Commitment: code.CommitmentHash,
		OrderID:    code.OrderID,
		ProductID:  code.ProductID,
		BuyerID:    code.BuyerID,
		RedeemedAt: redeemedAt,
	}, nil
}

// Verify runs the same checks as Redeem without consuming the code. A code
// alone answers "is this valid"; supplying purchase identifiers additionally
// checks the binding.
func (s *service) Verify(ctx context.Context, params VerifyParams) (*VerifyResult, error) {
	code, err := s.inspect(ctx, params)
	if err != nil {
		if typed := errors.As(err); typed != nil {
			switch typed.Code() {
			case errors.CodeMalformedCode, errors.CodeUnknownCode,
				errors.CodeOwnershipMismatch, errors.CodeAlreadyRedeemed:
				result := &VerifyResult{Valid: false, Reason: string(typed.Code())}
				if typed.Code() == errors.CodeAlreadyRedeemed {
					result.State = enums.CodeStateRedeemed
				}
				return result, nil
			}
		}
		return nil, err
	}
	return &VerifyResult{Valid: true, State: code.State}, nil
}

// resolve performs the non-consuming part of the redemption pipeline.
// Redemption always requires the full purchase binding.
func (s *service) resolve(ctx context.Context, params RedeemParams) (*models.DeliveryCode, error) {
	if params.ProductID == uuid.Nil || params.BuyerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "productId and buyerId are required")
	}
	return s.inspect(ctx, VerifyParams{
		RawCode:   params.RawCode,
		ProductID: params.ProductID,
		BuyerID:   params.BuyerID,
	})
}

// inspect checks format, existence, binding (for the identifiers given) and
// state, without consuming the code.
func (s *service) inspect(ctx context.Context, params VerifyParams) (*models.DeliveryCode, error) {
	if !s.format.Validate(params.RawCode) {
		return nil, errors.New(errors.CodeMalformedCode, "code does not match the expected format")
	}

	code, err := s.repo.FindByCommitment(ctx, security.Commitment(params.RawCode))
	if err != nil {
		if errors.Is(err, errors.CodeUnknownCode) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to look up code")
	}

	if params.ProductID != uuid.Nil && code.ProductID != params.ProductID {
		return nil, errors.New(errors.CodeOwnershipMismatch, "code is bound to a different purchase")
	}
	if params.BuyerID != uuid.Nil && code.BuyerID != params.BuyerID {
		return nil, errors.New(errors.CodeOwnershipMismatch, "code is bound to a different purchase")
	}
	if code.State == enums.CodeStateRedeemed {
		return nil, errors.New(errors.CodeAlreadyRedeemed, "code was already redeemed")
	}

	return code, nil
}

const outcomeAlreadyRedeemed = "already_redeemed"

func outcomeFor(err error) string {
	typed := errors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case errors.CodeMalformedCode:
		return "malformed"
	case errors.CodeUnknownCode:
		return "unknown"
	case errors.CodeOwnershipMismatch:
		return "ownership_mismatch"
	case errors.CodeAlreadyRedeemed:
		return outcomeAlreadyRedeemed
	case errors.CodeValidation:
		return "invalid_request"
	default:
		return "error"
	}
}
