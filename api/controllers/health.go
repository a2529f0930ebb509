package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/veracart/veracart-backend/api/responses"
	"github.com/veracart/veracart-backend/pkg/config"
	"github.com/veracart/veracart-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-VeraCart-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports per-dependency status. It returns 503 when any
// dependency is unreachable so the load balancer stops routing here.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-VeraCart-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{"status": "ready"}
		ready := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				status[name] = "down"
				ready = false
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+name, err)
				}
				continue
			}
			status[name] = "up"
		}

		if !ready {
			status["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// ReadyDeps assembles the dependency map for HealthReady, skipping nil entries.
func ReadyDeps(db, redis, pubsub pinger) map[string]pinger {
	deps := map[string]pinger{}
	if db != nil {
		deps["database"] = db
	}
	if redis != nil {
		deps["redis"] = redis
	}
	if pubsub != nil {
		deps["pubsub"] = pubsub
	}
	return deps
}
