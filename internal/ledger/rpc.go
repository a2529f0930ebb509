package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/metrics"
)

const signatureHeader = "X-Ledger-Signature"

// RPC talks to the network-connected ledger gateway over HTTP. Write bodies
// are HMAC-SHA256 signed with the shared ledger key; the gateway drops
// unsigned submissions.
type RPC struct {
	baseURL    string
	signingKey []byte
	httpClient *http.Client

	confirmTimeout time.Duration
	confirmPoll    time.Duration
	queryTimeout   time.Duration

	logg *logger.Logger
	mets *metrics.LedgerMetrics
}

// NewRPC builds the live backend from configuration.
func NewRPC(cfg config.LedgerConfig, logg *logger.Logger, mets *metrics.LedgerMetrics) (*RPC, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.RPCURL), "/")
	if base == "" {
		return nil, fmt.Errorf("ledger rpc url is required")
	}
	key := strings.TrimSpace(cfg.SigningKey)
	if key == "" {
		return nil, ErrNoSigner
	}

	return &RPC{
		baseURL:        base,
		signingKey:     []byte(key),
		httpClient:     &http.Client{Timeout: cfg.SubmitTimeout},
		confirmTimeout: cfg.ConfirmTimeout,
		confirmPoll:    cfg.ConfirmPoll,
		queryTimeout:   cfg.QueryTimeout,
		logg:           logg,
		mets:           mets,
	}, nil
}

type submitResponse struct {
	TxRef string `json:"txRef"`
}

type txStatusResponse struct {
	TxRef  string  `json:"txRef"`
	Status string  `json:"status"`
	Reason string  `json:"reason,omitempty"`
	Events []Event `json:"events,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *RPC) Submit(ctx context.Context, tx Transaction) (string, error) {
	started := time.Now()
	defer func() {
		r.mets.ObserveSubmit(string(tx.Operation), time.Since(started))
	}()

	body, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encoding ledger transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, r.sign(body))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var out submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("%w: decoding submit response: %v", ErrUnavailable, err)
		}
		if out.TxRef == "" {
			return "", fmt.Errorf("%w: submit response missing txRef", ErrUnavailable)
		}
		return out.TxRef, nil

	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", ErrRejected, readErrorReason(resp.Body))

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: gateway refused signature", ErrNoSigner)

	default:
		return "", fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
}

// AwaitConfirmation polls the gateway until the transaction settles or the
// confirmation window elapses. A timeout is reported as unavailability: the
// transaction may still confirm later.
func (r *RPC) AwaitConfirmation(ctx context.Context, txRef string) (*Result, error) {
	operation := "unknown"

	deadline := time.Now().Add(r.confirmTimeout)
	ticker := time.NewTicker(r.confirmPoll)
	defer ticker.Stop()

	for {
		status, err := r.fetchStatus(ctx, txRef)
		if err != nil {
			r.mets.IncConfirmation(operation, "error")
			return nil, err
		}

		switch status.Status {
		case "confirmed":
			result := &Result{TxRef: status.TxRef, Events: status.Events}
			r.mets.IncConfirmation(operationForResult(result), "confirmed")
			return result, nil
		case "rejected":
			r.mets.IncConfirmation(operation, "rejected")
			return nil, fmt.Errorf("%w: %s", ErrRejected, status.Reason)
		}

		if time.Now().After(deadline) {
			r.mets.IncConfirmation(operation, "timeout")
			return nil, fmt.Errorf("%w: confirmation window elapsed for %s", ErrUnavailable, txRef)
		}

		select {
		case <-ctx.Done():
			r.mets.IncConfirmation(operation, "timeout")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *RPC) fetchStatus(ctx context.Context, txRef string) (*txStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/transactions/%s", r.baseURL, url.PathEscape(txRef)), nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out txStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: decoding status response: %v", ErrUnavailable, err)
		}
		return &out, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: tx %q", ErrNotFound, txRef)
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
}

func (r *RPC) Query(ctx context.Context, op Operation, args map[string]string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := url.Values{}
	for k, v := range args {
		query.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/query/%s", r.baseURL, url.PathEscape(string(op)))
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building query request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out Result
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: decoding query response: %v", ErrUnavailable, err)
		}
		return &out, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: query %s", ErrNotFound, op)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrRejected, readErrorReason(resp.Body))
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
}

func (r *RPC) sign(body []byte) string {
	mac := hmac.New(sha256.New, r.signingKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func readErrorReason(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no reason given"
	}
	var out errorResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Error != "" {
		return out.Error
	}
	return strings.TrimSpace(string(raw))
}
