package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/dinecart/internal/graphql"
	"github.com/fjod/dinecart/internal/session"
	"github.com/fjod/dinecart/internal/workspace"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	workspaceKey
)

// RequestIDMiddleware adds a unique request ID to each request and forwards
// it to the GraphQL API.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(graphql.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = graphql.WithRequestID(ctx, requestID)
		w.Header().Set(graphql.HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionMiddleware resolves the bearer token to the user's workspace.
func SessionMiddleware(registry *workspace.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := registry.Open(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				switch {
				case errors.Is(err, session.ErrNoToken):
					respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				case graphql.IsTransport(err):
					respondError(w, http.StatusBadGateway, "upstream_unavailable", "Network error. Please check your connection.")
				default:
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), workspaceKey, ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", getRequestID(r.Context()),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.ErrorContext(r.Context(), "request", attrs...)
				return
			}
			log.InfoContext(r.Context(), "request", attrs...)
		})
	}
}

func getWorkspace(ctx context.Context) *workspace.Workspace {
	if ws, ok := ctx.Value(workspaceKey).(*workspace.Workspace); ok {
		return ws
	}
	return nil
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
