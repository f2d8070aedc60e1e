package daemon

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"loopdeck/internal/api"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/services"
)

// authMiddleware validates HS256 bearer tokens and records the token subject
// as the acting operator. With no secret configured every request passes
// through and actions are attributed to "system".
func authMiddleware(cfg config.API, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.JWTSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := api.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, logger, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
				return
			}
			subject, err := api.ParseToken(cfg.JWTSecret, cfg.JWTIssuer, token)
			if err != nil {
				logging.WithContext(r.Context(), logger).Debug("rejected bearer token", logging.Error(err))
				writeJSON(w, logger, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(services.WithActor(r.Context(), subject)))
		})
	}
}

// requestIDMiddleware tags each request with a correlation id, reusing the
// caller's X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
