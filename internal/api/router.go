/**
 * @description
 * This file sets up the HTTP router for the referral-service. It defines the
 * API endpoints, associates them with their handlers and applies middleware
 * for logging, CORS, origin checks, rate limiting and session authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: router and standard middleware.
 * - github.com/go-chi/cors: CORS handling.
 */
package api

import (
	"net/http"
	"time"

	"github.com/algoadopt/referral-service/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// RouterConfig carries the HTTP settings from configuration.
type RouterConfig struct {
	AllowedOrigins         []string
	AuthRateLimitPerMinute int
}

// NewRouter creates a new Chi router and registers the referral-service routes.
func NewRouter(h *Handler, parser TokenParser, limiter ratelimit.Limiter, cfg RouterConfig, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOrigins := cfg.AllowedOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	rateLimited := func(scope string) func(http.Handler) http.Handler {
		return RateLimitMiddleware(limiter, scope, cfg.AuthRateLimitPerMinute, rateLimitWindow, logger)
	}

	// Browser-facing routes, restricted to configured origins.
	r.Group(func(r chi.Router) {
		r.Use(OriginGuard(cfg.AllowedOrigins))

		r.With(rateLimited("signup")).Post("/signup", h.handleSignup)
		r.With(rateLimited("login")).Post("/login", h.handleLogin)
		r.Post("/get-total-members", h.handleMemberCount)
	})

	r.With(rateLimited("verify_payment")).Post("/verify-payment", h.handleVerifyPayment)
	r.Get("/members/count", h.handleMemberCount)

	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(parser))
		r.Get("/me", h.handleMe)
	})

	return r
}
