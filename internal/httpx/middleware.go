package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
)

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

func actorFrom(ctx context.Context) (orders.Actor, bool) {
	c, ok := claimsFrom(ctx)
	if !ok {
		return orders.Actor{}, false
	}
	return c.Actor(), true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			ctx = log.WithFields(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			ctx = log.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			log.Info(ctx, "request.complete")
		})
	}
}

// authenticate attaches claims when a bearer token is present. A malformed token is
// rejected even on routes where auth is optional.
func authenticate(parser TokenParser, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || parser == nil {
				writeError(r.Context(), log, w, apperr.New(apperr.CodeUnauthorized, "authorization header must be a bearer token"))
				return
			}
			claims, err := parser.Parse(strings.TrimSpace(token))
			if err != nil {
				writeError(r.Context(), log, w, apperr.Wrap(apperr.CodeUnauthorized, err, err.Error()))
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = log.WithFields(ctx, map[string]any{"user_id": claims.UserID, "role": claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAuth(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := claimsFrom(r.Context()); !ok {
				writeError(r.Context(), log, w, apperr.New(apperr.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireRole(log *logger.Logger, roles ...orders.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				writeError(r.Context(), log, w, apperr.New(apperr.CodeUnauthorized, "authentication required"))
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(r.Context(), log, w, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
		})
	}
}
