/**
 * @description
 * Custom middleware for the referral-service router: session authentication,
 * origin enforcement and per-client rate limiting.
 *
 * @dependencies
 * - pkg/session: bearer token validation.
 * - pkg/ratelimit: Redis or in-process request counting.
 */
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/algoadopt/referral-service/pkg/ratelimit"
	"github.com/algoadopt/referral-service/pkg/session"
	"go.uber.org/zap"
)

type contextKey string

const accountIDKey contextKey = "accountID"

// TokenParser validates session tokens.
type TokenParser interface {
	Parse(token string) (*session.Claims, error)
}

// AccountIDFromContext returns the authenticated account id, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey).(string)
	return accountID, ok && accountID != ""
}

// SessionAuthMiddleware requires a valid bearer session token.
func SessionAuthMiddleware(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims, err := parser.Parse(strings.TrimSpace(tokenString))
			if err != nil {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OriginGuard rejects requests whose Origin is not allowed. An empty list
// disables the check.
func OriginGuard(allowed []string) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowedSet) > 0 {
				origin := strings.TrimRight(r.Header.Get("Origin"), "/")
				if _, ok := allowedSet[origin]; !ok {
					writeMiddlewareError(w, http.StatusForbidden, "Forbidden")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware allows limit requests per window for each client IP.
// Limiter failures let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, scope string, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, clientIP(r), limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable",
					zap.String("component", "rate_limit"),
					zap.String("scope", scope),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeMiddlewareError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
