package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
)

// Operation names the ledger operations this service submits or queries.
type Operation string

const (
	OpRegisterCommitment Operation = "register-commitment"
	OpSubmitReview       Operation = "submit-review"
	OpVerifyCommitment   Operation = "verify-commitment"
	OpGetReview          Operation = "get-review"
)

// Event names emitted by confirmed transactions.
const (
	EventCommitmentRegistered = "CommitmentRegistered"
	EventReviewSubmitted      = "ReviewSubmitted"
)

var (
	// ErrUnavailable means the ledger could not be reached or did not answer
	// in time. Callers may degrade gracefully; the operation may or may not
	// have landed.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected means the ledger received the transaction and refused it.
	// This is a definitive answer, not a transport failure.
	ErrRejected = errors.New("ledger rejected transaction")

	// ErrNotFound means a query targeted a transaction or record the ledger
	// does not know about.
	ErrNotFound = errors.New("ledger record not found")

	// ErrNoSigner means the RPC backend was selected without a signing key.
	ErrNoSigner = errors.New("ledger signing key not configured")
)

// Transaction is a signed write submitted to the ledger.
type Transaction struct {
	Operation Operation         `json:"operation"`
	Payload   map[string]string `json:"payload"`
}

// Event is an attribute bag emitted by a confirmed transaction.
type Event struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// Result is the confirmed outcome of a transaction or the answer to a query.
type Result struct {
	TxRef  string            `json:"txRef,omitempty"`
	Events []Event           `json:"events,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// Adapter is the single seam between this service and the ledger. Both the
// live RPC backend and the in-process deterministic backend satisfy it.
type Adapter interface {
	// Submit sends the transaction and returns its reference. A returned ref
	// does not imply confirmation.
	Submit(ctx context.Context, tx Transaction) (string, error)

	// AwaitConfirmation blocks until the transaction referenced by txRef is
	// confirmed, rejected, or the configured confirmation window elapses.
	AwaitConfirmation(ctx context.Context, txRef string) (*Result, error)

	// Query runs a read-only operation against current ledger state.
	Query(ctx context.Context, op Operation, args map[string]string) (*Result, error)
}

// ExtractEvent pulls the named event out of a confirmed result.
func ExtractEvent(res *Result, name string) (*Event, error) {
	if res == nil {
		return nil, fmt.Errorf("nil ledger result")
	}
	for i := range res.Events {
		if res.Events[i].Name == name {
			return &res.Events[i], nil
		}
	}
	return nil, fmt.Errorf("event %q not present in ledger result", name)
}

// New builds the adapter selected by configuration.
func New(cfg config.LedgerConfig, logg *logger.Logger, mets *metrics.LedgerMetrics) (Adapter, error) {
	switch cfg.NormalizedBackend() {
	case config.LedgerBackendLocal:
		return NewLocal(logg, mets), nil
	case config.LedgerBackendRPC:
		return NewRPC(cfg, logg, mets)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
