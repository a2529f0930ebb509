package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/redemption"
	"github.com/veracart/veracart-backend/internal/reviews"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/enums"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/security"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubIssuerService struct{}

func (stubIssuerService) Issue(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
	return &issuer.IssuedCode{ID: uuid.New(), RawCode: "VC-AAAAAAAA-BBBBBBBB"}, nil
}

func (stubIssuerService) IssueMany(ctx context.Context, batch []issuer.IssueParams) ([]issuer.BatchResult, error) {
	return nil, nil
}

func (stubIssuerService) RegisterOnLedger(ctx context.Context, codeID uuid.UUID) (*issuer.IssuedCode, error) {
	return &issuer.IssuedCode{ID: codeID}, nil
}

func (stubIssuerService) Reveal(ctx context.Context, params issuer.IssueParams) (*issuer.IssuedCode, error) {
	return &issuer.IssuedCode{RawCode: "VC-AAAAAAAA-BBBBBBBB"}, nil
}

type stubRedemptionService struct{}

func (stubRedemptionService) Redeem(ctx context.Context, params redemption.RedeemParams) (*redemption.RedeemedCode, error) {
	return &redemption.RedeemedCode{CodeID: uuid.New()}, nil
}

func (stubRedemptionService) Verify(ctx context.Context, params redemption.VerifyParams) (*redemption.VerifyResult, error) {
	return &redemption.VerifyResult{Valid: true, State: enums.CodeStateIssued}, nil
}

type stubReviewsService struct{}

func (stubReviewsService) SubmitReview(ctx context.Context, params reviews.SubmitParams) (*reviews.ReviewDTO, error) {
	return &reviews.ReviewDTO{ID: uuid.New()}, nil
}

func (stubReviewsService) CanReview(ctx context.Context, productID, buyerID uuid.UUID) (*reviews.Eligibility, error) {
	return &reviews.Eligibility{Eligible: true, Reason: enums.EligibilityReasonEligible}, nil
}

func (stubReviewsService) GetReview(ctx context.Context, id uuid.UUID) (*reviews.ReviewDTO, error) {
	return &reviews.ReviewDTO{ID: id}, nil
}

func (stubReviewsService) ListReviews(ctx context.Context, params reviews.ListParams) (*reviews.ListResult, error) {
	return &reviews.ListResult{}, nil
}

func (stubReviewsService) GetAggregate(ctx context.Context, productID uuid.UUID) (*reviews.AggregateDTO, error) {
	return &reviews.AggregateDTO{ProductID: productID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		Auth: config.AuthConfig{
			ServiceTokenSecret: "test-secret",
			ServiceTokenIssuer: "veracart",
		},
		RateLimit: config.RateLimitConfig{
			CodeWindow:       time.Minute,
			CodeIPLimit:      30,
			CodeBuyerLimit:   10,
			SubmitWindow:     5 * time.Minute,
			SubmitIPLimit:    20,
			SubmitBuyerLimit: 5,
		},
	}
}

func newTestRouter(cfg *config.Config, registry prometheus.Gatherer) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(Deps{
		Config:  cfg,
		Logger:  logg,
		DB:      stubPinger{},
		Issuer:  stubIssuerService{},
		Redeem:  stubRedemptionService{},
		Reviews: stubReviewsService{},
		Metrics: registry,
	})
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(testConfig(), nil)

	live := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, live)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for live got %d", resp.Code)
	}

	ready := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, ready)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ready got %d", resp.Code)
	}
}

func TestAdminGroupRequiresServiceToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	body := `{"orderId":"` + uuid.NewString() + `","productId":"` + uuid.NewString() + `","buyerId":"` + uuid.NewString() + `"}`

	anon := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, anon)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	token, err := security.MintServiceToken(cfg.Auth.ServiceTokenSecret, cfg.Auth.ServiceTokenIssuer, "order-management", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	authed := httptest.NewRequest(http.MethodPost, "/api/admin/v1/codes", strings.NewReader(body))
	authed.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, authed)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with service token got %d", resp.Code)
	}
}

func TestVerifyCodeRouteWired(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	body := `{"code":"VC-AAAAAAAA-BBBBBBBB","productId":"` + uuid.NewString() + `","buyerId":"` + uuid.NewString() + `"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/codes/verify", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for verify got %d", resp.Code)
	}
}

func TestSubmitReviewRejectsBadJSON(t *testing.T) {
	router := newTestRouter(testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid payload got %d", resp.Code)
	}
}

func TestProductRoutesWired(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	productID := uuid.NewString()

	list := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID+"/reviews", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, list)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for list got %d", resp.Code)
	}

	rating := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID+"/rating", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, rating)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for rating got %d", resp.Code)
	}
}

func TestMetricsExposedWhenRegistryProvided(t *testing.T) {
	router := newTestRouter(testConfig(), prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics got %d", resp.Code)
	}
}
