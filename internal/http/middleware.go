package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/harshees/storefront/internal/service"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type callerKey struct{}

// IdentityMiddleware reads the caller verified by the upstream gateway.
// Requests without a user id are rejected.
func IdentityMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	rs := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				rs.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}
			caller := service.Caller{
				UserID: userID,
				Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
			}
			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after IdentityMiddleware.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	rs := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := callerFromContext(r.Context())
			if !ok || !caller.IsAdmin() {
				rs.respondError(w, http.StatusForbidden, string(service.KindForbidden), "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerFromContext(ctx context.Context) (service.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(service.Caller)
	return caller, ok
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
