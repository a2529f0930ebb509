package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/veracart/veracart-backend/api/responses"
	"github.com/veracart/veracart-backend/pkg/config"
	pkgerrors "github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
	"github.com/veracart/veracart-backend/pkg/security"
)

type ctxKey string

const ctxCallerService ctxKey = "caller_service"

// ServiceAuth guards the admin surface. Only internal services holding a
// token signed with the shared secret may issue or register codes.
func ServiceAuth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			caller, err := security.ParseServiceToken(cfg.ServiceTokenSecret, cfg.ServiceTokenIssuer, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid service token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxCallerService, caller)
			if logg != nil {
				ctx = logg.WithField(ctx, "caller_service", caller)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerServiceFromContext returns the authenticated internal caller, if any.
func CallerServiceFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(ctxCallerService).(string); ok {
		return value
	}
	return ""
}
