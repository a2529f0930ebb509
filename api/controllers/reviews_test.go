package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/internal/reviews"
	"github.com/veracart/veracart-backend/pkg/enums"
	pkgerrors "github.com/veracart/veracart-backend/pkg/errors"
)

type testReviewsService struct {
	submitFn    func(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error)
	canReviewFn func(ctx context.Context, productID, buyerID uuid.UUID) (*reviews.Eligibility, error)
	getFn       func(ctx context.Context, id uuid.UUID) (*reviews.ReviewDTO, error)
	listFn      func(ctx context.Context, params reviews.ListParams) (*reviews.ListResult, error)
	aggregateFn func(ctx context.Context, productID uuid.UUID) (*reviews.AggregateDTO, error)
}

func (s *testReviewsService) SubmitReview(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, params)
	}
	return nil, nil
}

func (s *testReviewsService) CanReview(ctx context.Context, productID, buyerID uuid.UUID) (*reviews.Eligibility, error) {
	if s.canReviewFn != nil {
		return s.canReviewFn(ctx, productID, buyerID)
	}
	return nil, nil
}

func (s *testReviewsService) GetReview(ctx context.Context, id uuid.UUID) (*reviews.ReviewDTO, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, nil
}

func (s *testReviewsService) ListReviews(ctx context.Context, params reviews.ListParams) (*reviews.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil
}

func (s *testReviewsService) GetAggregate(ctx context.Context, productID uuid.UUID) (*reviews.AggregateDTO, error) {
	if s.aggregateFn != nil {
		return s.aggregateFn(ctx, productID)
	}
	return nil, nil
}

func validSubmitBody(t *testing.T) *bytes.Reader {
	return jsonBody(t, map[string]any{
		"productId": uuid.NewString(),
		"buyerId":   uuid.NewString(),
		"code":      "VC-AAAAAAAA-BBBBBBBB",
		"rating":    5,
		"comment":   "Exactly as described, arrived early.",
	})
}

func TestSubmitReviewCreated(t *testing.T) {
	svc := &testReviewsService{
		submitFn: func(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error) {
			return &reviews.ReviewDTO{ID: uuid.New(), Tier: enums.VerificationTierLedgerConfirmed}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", validSubmitBody(t))
	resp := httptest.NewRecorder()

	SubmitReview(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			VerificationTier string `json:"verificationTier"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.VerificationTier != string(enums.VerificationTierLedgerConfirmed) {
		t.Fatalf("unexpected tier %q", envelope.Data.VerificationTier)
	}
}

func TestSubmitReviewErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    *pkgerrors.Error
		status int
	}{
		{"malformed", pkgerrors.New(pkgerrors.CodeMalformedCode, "bad format"), http.StatusBadRequest},
		{"unknown", pkgerrors.New(pkgerrors.CodeUnknownCode, "not recognized"), http.StatusNotFound},
		{"ownership", pkgerrors.New(pkgerrors.CodeOwnershipMismatch, "wrong purchase"), http.StatusForbidden},
		{"already_redeemed", pkgerrors.New(pkgerrors.CodeAlreadyRedeemed, "used"), http.StatusConflict},
		{"duplicate", pkgerrors.New(pkgerrors.CodeDuplicateReview, "exists"), http.StatusConflict},
		{"ledger_rejected", pkgerrors.New(pkgerrors.CodeLedgerRejected, "refused"), http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &testReviewsService{
				submitFn: func(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error) {
					return nil, tc.err
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", validSubmitBody(t))
			resp := httptest.NewRecorder()

			SubmitReview(svc, testLogger())(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
			var envelope struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("unmarshal response: %v", err)
			}
			if envelope.Error.Code != string(tc.err.Code()) {
				t.Fatalf("expected code %s got %s", tc.err.Code(), envelope.Error.Code)
			}
		})
	}
}

func TestSubmitReviewRejectsMissingFields(t *testing.T) {
	called := false
	svc := &testReviewsService{
		submitFn: func(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error) {
			called = true
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", bytes.NewReader([]byte(`{"rating":3}`)))
	resp := httptest.NewRecorder()

	SubmitReview(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("service must not be called for invalid body")
	}
}

func TestReviewEligibility(t *testing.T) {
	productID, buyerID := uuid.New(), uuid.New()
	svc := &testReviewsService{
		canReviewFn: func(ctx context.Context, pid, bid uuid.UUID) (*reviews.Eligibility, error) {
			if pid != productID || bid != buyerID {
				t.Fatalf("unexpected ids %s %s", pid, bid)
			}
			return &reviews.Eligibility{Eligible: true, Reason: enums.EligibilityReasonEligible}, nil
		},
	}

	target := "/api/v1/reviews/eligibility?productId=" + productID.String() + "&buyerId=" + buyerID.String()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()

	ReviewEligibility(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestReviewEligibilityMissingParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/eligibility", nil)
	resp := httptest.NewRecorder()

	ReviewEligibility(&testReviewsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetReviewNotFound(t *testing.T) {
	reviewID := uuid.New()
	svc := &testReviewsService{
		getFn: func(ctx context.Context, id uuid.UUID) (*reviews.ReviewDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/"+reviewID.String(), nil)
	req = addRouteParam(req, "reviewId", reviewID.String())
	resp := httptest.NewRecorder()

	GetReview(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListReviewsPassesPagination(t *testing.T) {
	productID := uuid.New()
	svc := &testReviewsService{
		listFn: func(ctx context.Context, params reviews.ListParams) (*reviews.ListResult, error) {
			if params.ProductID != productID {
				t.Fatalf("unexpected product %s", params.ProductID)
			}
			if params.Limit != 10 || params.Cursor != "abc" {
				t.Fatalf("unexpected pagination %+v", params)
			}
			return &reviews.ListResult{}, nil
		},
	}

	target := "/api/v1/products/" + productID.String() + "/reviews?limit=10&cursor=abc"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = addRouteParam(req, "productId", productID.String())
	resp := httptest.NewRecorder()

	ListReviews(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestProductRating(t *testing.T) {
	productID := uuid.New()
	svc := &testReviewsService{
		aggregateFn: func(ctx context.Context, pid uuid.UUID) (*reviews.AggregateDTO, error) {
			return &reviews.AggregateDTO{ProductID: pid, ReviewCount: 3, VerifiedReviewCount: 2}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID.String()+"/rating", nil)
	req = addRouteParam(req, "productId", productID.String())
	resp := httptest.NewRecorder()

	ProductRating(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			ReviewCount         int `json:"reviewCount"`
			VerifiedReviewCount int `json:"verifiedReviewCount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ReviewCount != 3 || envelope.Data.VerifiedReviewCount != 2 {
		t.Fatalf("unexpected aggregate %+v", envelope.Data)
	}
}
