package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/redemption"
	pkgerrors "github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
)

type testIssuerService struct {
	issueFn     func(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error)
	issueManyFn func(ctx context.Context, batch []issuer.IssueParams) ([]issuer.BatchResult, error)
	registerFn  func(ctx context.Context, codeID uuid.UUID) (*issuer.IssuedCode, error)
	revealFn    func(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error)
}

func (s *testIssuerService) Issue(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, params)
	}
	return nil, nil
}

func (s *testIssuerService) IssueMany(ctx context.Context, batch []issuer.IssueParams) ([]issuer.BatchResult, error) {
	if s.issueManyFn != nil {
		return s.issueManyFn(ctx, batch)
	}
	return nil, nil
}

func (s *testIssuerService) RegisterOnLedger(ctx context.Context, codeID uuid.UUID) (*issuer.IssuedCode, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, codeID)
	}
	return nil, nil
}

func (s *testIssuerService) Reveal(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
	if s.revealFn != nil {
		return s.revealFn(ctx, params)
	}
	return nil, nil
}

type testRedemptionService struct {
	redeemFn func(ctx context.Context, params redemption.RedeemParams) (*redemption.RedeemedCode, error)
	verifyFn func(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error)
}

func (s *testRedemptionService) Redeem(ctx context.Context, params redemption.RedeemParams) (*redemption.RedeemedCode, error) {
	if s.redeemFn != nil {
		return s.redeemFn(ctx, params)
	}
	return nil, nil
}

func (s *testRedemptionService) Verify(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, params)
	}
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func TestVerifyCodeSuccess(t *testing.T) {
	called := false
	svc := &testRedemptionService{
		verifyFn: func(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error) {
			called = true
			return &redemption.VerifyResult{Valid: true}, nil
		},
	}

	body := jsonBody(t, map[string]any{
		"code":      "VC-AAAAAAAA-BBBBBBBB",
		"productId": uuid.NewString(),
		"buyerId":   uuid.NewString(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/codes/verify", body)
	resp := httptest.NewRecorder()

	VerifyCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
}

func TestVerifyCodeAcceptsCodeOnlyBody(t *testing.T) {
	var got redemption.VerifyParams
	svc := &testRedemptionService{
		verifyFn: func(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error) {
			got = params
			return &redemption.VerifyResult{Valid: true}, nil
		},
	}

	// The purchase identifiers are optional on verify.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/codes/verify",
		bytes.NewReader([]byte(`{"code":"VC-AAAAAAAA-BBBBBBBB"}`)))
	resp := httptest.NewRecorder()

	VerifyCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.RawCode != "VC-AAAAAAAA-BBBBBBBB" {
		t.Fatalf("unexpected code %q", got.RawCode)
	}
	if got.ProductID != uuid.Nil || got.BuyerID != uuid.Nil {
		t.Fatalf("expected empty purchase binding, got %+v", got)
	}

	var envelope struct {
		Data redemption.VerifyResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.Valid {
		t.Fatal("expected valid result")
	}
}

func TestVerifyCodeRejectsBadBody(t *testing.T) {
	called := false
	svc := &testRedemptionService{
		verifyFn: func(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error) {
			called = true
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/codes/verify", bytes.NewReader([]byte(`{"code":""}`)))
	resp := httptest.NewRecorder()

	VerifyCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	// Malformed input never reaches the service.
	if called {
		t.Fatal("service must not be called for invalid body")
	}
}

func TestIssueCodeCreated(t *testing.T) {
	svc := &testIssuerService{
		issueFn: func(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
			return &issuer.IssuedCode{ID: uuid.New(), RawCode: "VC-AAAAAAAA-BBBBBBBB"}, nil
		},
	}

	body := jsonBody(t, map[string]string{
		"orderId":   uuid.NewString(),
		"productId": uuid.NewString(),
		"buyerId":   uuid.NewString(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes", body)
	resp := httptest.NewRecorder()

	IssueCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestIssueCodeIdempotentReturns200(t *testing.T) {
	svc := &testIssuerService{
		issueFn: func(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
			return &issuer.IssuedCode{ID: uuid.New(), AlreadyIssued: true}, nil
		},
	}

	body := jsonBody(t, map[string]string{
		"orderId":   uuid.NewString(),
		"productId": uuid.NewString(),
		"buyerId":   uuid.NewString(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes", body)
	resp := httptest.NewRecorder()

	IssueCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestIssueCodeBatchPartialFailure(t *testing.T) {
	svc := &testIssuerService{
		issueManyFn: func(ctx context.Context, batch []issuer.IssueParams) ([]issuer.BatchResult, error) {
			return []issuer.BatchResult{{Index: 0, Code: issuer.IssuedCode{ID: uuid.New()}}},
				pkgerrors.New(pkgerrors.CodeInternal, "entry 1 failed")
		},
	}

	body := jsonBody(t, map[string]any{
		"items": []map[string]string{
			{"orderId": uuid.NewString(), "productId": uuid.NewString(), "buyerId": uuid.NewString()},
			{"orderId": uuid.NewString(), "productId": uuid.NewString(), "buyerId": uuid.NewString()},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes/batch", body)
	resp := httptest.NewRecorder()

	IssueCodeBatch(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Issued   []json.RawMessage `json:"issued"`
			Failures []string          `json:"failures"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Issued) != 1 || len(envelope.Data.Failures) != 1 {
		t.Fatalf("unexpected batch payload: %+v", envelope.Data)
	}
}

func TestIssueCodeBatchTotalFailure(t *testing.T) {
	svc := &testIssuerService{
		issueManyFn: func(ctx context.Context, batch []issuer.IssueParams) ([]issuer.BatchResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch too large")
		},
	}

	body := jsonBody(t, map[string]any{
		"items": []map[string]string{
			{"orderId": uuid.NewString(), "productId": uuid.NewString(), "buyerId": uuid.NewString()},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes/batch", body)
	resp := httptest.NewRecorder()

	IssueCodeBatch(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRegisterCodeInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes/invalid/register", nil)
	req = addRouteParam(req, "codeId", "invalid")
	resp := httptest.NewRecorder()

	RegisterCode(&testIssuerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRegisterCodeSuccess(t *testing.T) {
	codeID := uuid.New()
	txRef := "tx-1"
	svc := &testIssuerService{
		registerFn: func(ctx context.Context, id uuid.UUID) (*issuer.IssuedCode, error) {
			if id != codeID {
				t.Fatalf("unexpected code id %s", id)
			}
			return &issuer.IssuedCode{ID: id, LedgerTxRef: &txRef}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes/"+codeID.String()+"/register", nil)
	req = addRouteParam(req, "codeId", codeID.String())
	resp := httptest.NewRecorder()

	RegisterCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestRevealCodeRequiresQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/codes/reveal?orderId="+uuid.NewString(), nil)
	resp := httptest.NewRecorder()

	RevealCode(&testIssuerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRevealCodeNotFound(t *testing.T) {
	svc := &testIssuerService{
		revealFn: func(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery code not found")
		},
	}

	target := "/api/admin/v1/codes/reveal?orderId=" + uuid.NewString() +
		"&productId=" + uuid.NewString() + "&buyerId=" + uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()

	RevealCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}
