package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
)

// Local is an in-process, deterministic ledger backend. It keeps an
// append-only transaction log guarded by a mutex and confirms every accepted
// transaction immediately, which makes it suitable for local development and
// tests. Replaying the same transactions in the same order always yields the
// same refs and state.
type Local struct {
	mu    sync.Mutex
	seq   uint64
	log   []*localEntry
	byRef map[string]*localEntry

	commitments map[string]*commitmentRecord
	reviews     map[string]map[string]string

	logg *logger.Logger
	mets *metrics.LedgerMetrics
}

type localEntry struct {
	ref    string
	result Result
}

type commitmentRecord struct {
	registeredRef string
	usedByRef     string
}

// NewLocal returns an empty deterministic ledger.
func NewLocal(logg *logger.Logger, mets *metrics.LedgerMetrics) *Local {
	return &Local{
		byRef:       make(map[string]*localEntry),
		commitments: make(map[string]*commitmentRecord),
		reviews:     make(map[string]map[string]string),
		logg:        logg,
		mets:        mets,
	}
}

func (l *Local) Submit(ctx context.Context, tx Transaction) (string, error) {
	started := time.Now()
	defer func() {
		l.mets.ObserveSubmit(string(tx.Operation), time.Since(started))
	}()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch tx.Operation {
	case OpRegisterCommitment:
		return l.registerCommitmentLocked(tx)
	case OpSubmitReview:
		return l.submitReviewLocked(tx)
	default:
		return "", fmt.Errorf("%w: operation %q is not a write", ErrRejected, tx.Operation)
	}
}

func (l *Local) registerCommitmentLocked(tx Transaction) (string, error) {
	commitment := tx.Payload["commitment"]
	if commitment == "" {
		return "", fmt.Errorf("%w: commitment is required", ErrRejected)
	}
	if _, exists := l.commitments[commitment]; exists {
		return "", fmt.Errorf("%w: commitment already registered", ErrRejected)
	}

	ref := l.nextRefLocked()
	l.commitments[commitment] = &commitmentRecord{registeredRef: ref}
	l.appendLocked(ref, Result{
		TxRef: ref,
		Events: []Event{{
			Name: EventCommitmentRegistered,
			Attributes: map[string]string{
				"commitment": commitment,
			},
		}},
	})
	return ref, nil
}

func (l *Local) submitReviewLocked(tx Transaction) (string, error) {
	commitment := tx.Payload["commitment"]
	if commitment == "" {
		return "", fmt.Errorf("%w: commitment is required", ErrRejected)
	}
	record, exists := l.commitments[commitment]
	if !exists {
		return "", fmt.Errorf("%w: commitment not registered", ErrRejected)
	}
	if record.usedByRef != "" {
		return "", fmt.Errorf("%w: commitment already consumed", ErrRejected)
	}
	contentID := tx.Payload["contentId"]
	if contentID == "" {
		return "", fmt.Errorf("%w: contentId is required", ErrRejected)
	}

	ref := l.nextRefLocked()
	reviewRef := fmt.Sprintf("local-review-%08d", l.seq)
	record.usedByRef = ref

	review := map[string]string{
		"reviewRef":  reviewRef,
		"commitment": commitment,
		"contentId":  contentID,
	}
	if rating := tx.Payload["rating"]; rating != "" {
		review["rating"] = rating
	}
	l.reviews[reviewRef] = review

	l.appendLocked(ref, Result{
		TxRef: ref,
		Events: []Event{{
			Name: EventReviewSubmitted,
			Attributes: map[string]string{
				"reviewRef":  reviewRef,
				"commitment": commitment,
				"contentId":  contentID,
			},
		}},
	})
	return ref, nil
}

// AwaitConfirmation resolves immediately: the local backend confirms
// transactions at submit time.
func (l *Local) AwaitConfirmation(ctx context.Context, txRef string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.byRef[txRef]
	if !ok {
		l.mets.IncConfirmation("unknown", "error")
		return nil, fmt.Errorf("%w: tx %q", ErrNotFound, txRef)
	}

	result := entry.result
	l.mets.IncConfirmation(operationForResult(&result), "confirmed")
	return &result, nil
}

func (l *Local) Query(ctx context.Context, op Operation, args map[string]string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch op {
	case OpVerifyCommitment:
		commitment := args["commitment"]
		record, exists := l.commitments[commitment]
		if !exists {
			return &Result{Data: map[string]string{"registered": "false"}}, nil
		}
		data := map[string]string{
			"registered": "true",
			"txRef":      record.registeredRef,
			"consumed":   fmt.Sprintf("%t", record.usedByRef != ""),
		}
		return &Result{Data: data}, nil

	case OpGetReview:
		review, exists := l.reviews[args["reviewRef"]]
		if !exists {
			return nil, fmt.Errorf("%w: review %q", ErrNotFound, args["reviewRef"])
		}
		data := make(map[string]string, len(review))
		for k, v := range review {
			data[k] = v
		}
		return &Result{Data: data}, nil

	default:
		return nil, fmt.Errorf("%w: operation %q is not a query", ErrRejected, op)
	}
}

func (l *Local) nextRefLocked() string {
	l.seq++
	return fmt.Sprintf("local-tx-%08d", l.seq)
}

func (l *Local) appendLocked(ref string, result Result) {
	entry := &localEntry{ref: ref, result: result}
	l.log = append(l.log, entry)
	l.byRef[ref] = entry
}

func operationForResult(res *Result) string {
	if res == nil || len(res.Events) == 0 {
		return "unknown"
	}
	switch res.Events[0].Name {
	case EventCommitmentRegistered:
		return string(OpRegisterCommitment)
	case EventReviewSubmitted:
		return string(OpSubmitReview)
	default:
		return "unknown"
	}
}
