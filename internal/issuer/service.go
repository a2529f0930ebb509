package issuer

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/veracart/veracart-backend/internal/ledger"
	"github.com/veracart/veracart-backend/pkg/db/models"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/security"
)

// issueAnchorTimeout caps the opportunistic ledger registration attempted
// during Issue. Codes left unanchored by the cutoff stay issuable and can be
// registered later.
const issueAnchorTimeout = 5 * time.Second

// Service issues secure delivery codes against verified purchases. Issuance is
// idempotent per (order, product, buyer): re-issuing returns the code already
// bound to that purchase.
type Service interface {
	Issue(ctx context.Context, params IssueParams) (*IssuedCode, error)
	IssueMany(ctx context.Context, batch []IssueParams) ([]BatchResult, error)
	RegisterOnLedger(ctx context.Context, codeID uuid.UUID) (*IssuedCode, error)
	Reveal(ctx context.Context, params IssueParams) (*IssuedCode, error)
}

type service struct {
	repo     Repository
	format   *security.CodeFormat
	vault    *security.CodeVault
	chain    ledger.Adapter
	logg     *logger.Logger
	maxBatch int
}

func NewService(
	repo Repository,
	format *security.CodeFormat,
	vault *security.CodeVault,
	chain ledger.Adapter,
	logg *logger.Logger,
	maxBatch int,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("issuer repository is required")
	}
	if format == nil {
		return nil, fmt.Errorf("code format is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("code vault is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("ledger adapter is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if maxBatch <= 0 {
		return nil, fmt.Errorf("max batch size must be positive")
	}
	return &service{
		repo:     repo,
		format:   format,
		vault:    vault,
		chain:    chain,
		logg:     logg,
		maxBatch: maxBatch,
	}, nil
}

func (s *service) Issue(ctx context.Context, params IssueParams) (*IssuedCode, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	ctx = s.logg.WithProductID(ctx, params.ProductID.String())
	ctx = s.logg.WithBuyerID(ctx, params.BuyerID.String())

	if existing, err := s.repo.FindByTriple(ctx, params.OrderID, params.ProductID, params.BuyerID); err == nil {
		return s.unsealed(existing, true)
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to look up existing code")
	}

	rawCode, err := s.format.Generate()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to generate delivery code")
	}
	sealed, err := s.vault.Seal(rawCode)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to seal delivery code")
	}

	record := &models.DeliveryCode{
		CommitmentHash: security.Commitment(rawCode),
		EncryptedCode:  sealed,
		OrderID:        params.OrderID,
		ProductID:      params.ProductID,
		BuyerID:        params.BuyerID,
		State:          enums.CodeStateIssued,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		// A concurrent issue for the same purchase can win the race on the
		// triple index. The stored code is the canonical one.
		if existing, lookupErr := s.repo.FindByTriple(ctx, params.OrderID, params.ProductID, params.BuyerID); lookupErr == nil {
			return s.unsealed(existing, true)
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to persist delivery code")
	}

	ctx = s.logg.WithCommitment(ctx, record.CommitmentHash)
	s.logg.Info(ctx, "delivery code issued")

	// Ledger registration is best effort at issue time. The code is usable
	// regardless; an unanchored code can be registered again later. The
	// attempt runs under its own short deadline so a slow ledger cannot hold
	// up issuance; the full confirmation window belongs to RegisterOnLedger.
	anchorCtx, cancel := context.WithTimeout(ctx, issueAnchorTimeout)
	if err := s.anchor(anchorCtx, record); err != nil {
		s.logg.Warn(ctx, "ledger registration deferred: "+err.Error())
	}
	cancel()

	issued, err := s.toIssued(record, false)
	if err != nil {
		return nil, err
	}
	issued.RawCode = rawCode
	return issued, nil
}

func (s *service) IssueMany(ctx context.Context, batch []IssueParams) ([]BatchResult, error) {
	if len(batch) == 0 {
		return nil, errors.New(errors.CodeValidation, "batch must not be empty")
	}
	if len(batch) > s.maxBatch {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(batch), s.maxBatch))
	}

	var combined error
	results := make([]BatchResult, 0, len(batch))
	for i, params := range batch {
		issued, err := s.Issue(ctx, params)
		if err != nil {
			combined = multierr.Append(combined, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		results = append(results, BatchResult{Index: i, Code: *issued})
	}
	return results, combined
}

// RegisterOnLedger anchors an issued code's commitment on the ledger. Calling
// it for an already anchored code returns the existing registration.
func (s *service) RegisterOnLedger(ctx context.Context, codeID uuid.UUID) (*IssuedCode, error) {
	record, err := s.repo.FindByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load delivery code")
	}

	if record.LedgerTxRef != nil {
		return s.toIssued(record, true)
	}

	ctx = s.logg.WithCommitment(ctx, record.CommitmentHash)
	if err := s.anchor(ctx, record); err != nil {
		if errors.Is(err, errors.CodeLedgerRejected) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "ledger registration failed")
	}
	return s.toIssued(record, false)
}

// Reveal returns the code bound to a purchase, decrypted for display to the
// buyer who owns it. Ownership is the caller's responsibility to enforce.
func (s *service) Reveal(ctx context.Context, params IssueParams) (*IssuedCode, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	record, err := s.repo.FindByTriple(ctx, params.OrderID, params.ProductID, params.BuyerID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load delivery code")
	}

	return s.unsealed(record, true)
}

func (s *service) unsealed(record *models.DeliveryCode, alreadyIssued bool) (*IssuedCode, error) {
	issued, err := s.toIssued(record, alreadyIssued)
	if err != nil {
		return nil, err
	}
	raw, err := s.vault.Open(record.EncryptedCode)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to unseal delivery code")
	}
	issued.RawCode = raw
	return issued, nil
}

func (s *service) anchor(ctx context.Context, record *models.DeliveryCode) error {
	txRef, err := s.chain.Submit(ctx, ledger.Transaction{
		Operation: ledger.OpRegisterCommitment,
		Payload:   map[string]string{"commitment": record.CommitmentHash},
	})
	if err != nil {
		if ledgerRejected(err) {
			return errors.Wrap(errors.CodeLedgerRejected, err, "ledger rejected commitment registration")
		}
		return err
	}

	result, err := s.chain.AwaitConfirmation(ctx, txRef)
	if err != nil {
		if ledgerRejected(err) {
			return errors.Wrap(errors.CodeLedgerRejected, err, "ledger rejected commitment registration")
		}
		return err
	}
	if _, err := ledger.ExtractEvent(result, ledger.EventCommitmentRegistered); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.repo.MarkAnchored(ctx, record.ID, result.TxRef, now); err != nil {
		return err
	}
	record.LedgerTxRef = &result.TxRef
	record.LedgerAnchored = &now

	s.logg.Info(ctx, "commitment registered on ledger")
	return nil
}

func (s *service) toIssued(record *models.DeliveryCode, alreadyIssued bool) (*IssuedCode, error) {
	return &IssuedCode{
		ID:             record.ID,
		Commitment:     record.CommitmentHash,
		OrderID:        record.OrderID,
		ProductID:      record.ProductID,
		BuyerID:        record.BuyerID,
		State:          record.State,
		LedgerTxRef:    record.LedgerTxRef,
		LedgerAnchored: record.LedgerAnchored,
		AlreadyIssued:  alreadyIssued,
		CreatedAt:      record.CreatedAt,
	}, nil
}

func validateParams(params IssueParams) error {
	if params.OrderID == uuid.Nil || params.ProductID == uuid.Nil || params.BuyerID == uuid.Nil {
		return errors.New(errors.CodeValidation, "orderId, productId and buyerId are required")
	}
	return nil
}

func ledgerRejected(err error) bool {
	return stderrors.Is(err, ledger.ErrRejected)
}
