package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veracart/veracart-backend/api/controllers"
	"github.com/veracart/veracart-backend/api/middleware"
	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/internal/redemption"
	"github.com/veracart/veracart-backend/internal/reviews"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into controllers and middleware.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      pinger
	Redis   *redis.Client
	PubSub  pinger
	Issuer  issuer.Service
	Redeem  redemption.Service
	Reviews reviews.Service
	Metrics prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// a nil *redis.Client must stay a nil interface downstream
	var limiterStore middleware.RateLimiterStore
	var redisPinger pinger
	if deps.Redis != nil {
		limiterStore = deps.Redis
		redisPinger = deps.Redis
	}

	codePolicy := middleware.NewRateLimitPolicy(
		"codes",
		cfg.RateLimit.CodeWindow,
		cfg.RateLimit.CodeIPLimit,
		cfg.RateLimit.CodeBuyerLimit,
	)
	submitPolicy := middleware.NewRateLimitPolicy(
		"reviews",
		cfg.RateLimit.SubmitWindow,
		cfg.RateLimit.SubmitIPLimit,
		cfg.RateLimit.SubmitBuyerLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadyDeps(deps.DB, redisPinger, deps.PubSub)))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/codes", func(r chi.Router) {
			r.With(middleware.RateLimit(codePolicy, limiterStore, logg)).
				Post("/verify", controllers.VerifyCode(deps.Redeem, logg))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.With(middleware.RateLimit(submitPolicy, limiterStore, logg)).
				Post("/", controllers.SubmitReview(deps.Reviews, logg))
			r.Get("/eligibility", controllers.ReviewEligibility(deps.Reviews, logg))
			r.Get("/{reviewId}", controllers.GetReview(deps.Reviews, logg))
		})

		r.Route("/products/{productId}", func(r chi.Router) {
			r.Get("/reviews", controllers.ListReviews(deps.Reviews, logg))
			r.Get("/rating", controllers.ProductRating(deps.Reviews, logg))
		})
	})

	r.Route("/api/admin/v1/codes", func(r chi.Router) {
		r.Use(middleware.ServiceAuth(cfg.Auth, logg))
		r.Post("/", controllers.IssueCode(deps.Issuer, logg))
		r.Post("/batch", controllers.IssueCodeBatch(deps.Issuer, logg))
		r.Post("/{codeId}/register", controllers.RegisterCode(deps.Issuer, logg))
		r.Get("/reveal", controllers.RevealCode(deps.Issuer, logg))
	})

	return r
}
