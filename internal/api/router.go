package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunecard/tunecard/internal/database"
	mw "github.com/tunecard/tunecard/internal/middleware"
	inats "github.com/tunecard/tunecard/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Login    http.HandlerFunc
	Callback http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Card handlers
	GenerateCard http.HandlerFunc
	ListCards    http.HandlerFunc
	GetCard      http.HandlerFunc
	DownloadCard http.HandlerFunc

	// Usage and audit handlers
	GetUsage      http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	// API token handlers
	CreateToken http.HandlerFunc
	ListTokens  http.HandlerFunc
	DeleteToken http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public) — optionally rate-limited at the front door
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Get("/login", h.Login)
			r.Get("/callback", h.Callback)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/cards", func(r chi.Router) {
				r.Post("/", h.GenerateCard)
				r.Get("/", h.ListCards)

				r.Route("/{cardID}", func(r chi.Router) {
					r.Get("/", h.GetCard)
					r.Get("/image", h.DownloadCard)
				})
			})

			r.Get("/usage", h.GetUsage)
			r.Get("/audit", h.ListAuditLogs)

			r.Route("/tokens", func(r chi.Router) {
				r.Post("/", h.CreateToken)
				r.Get("/", h.ListTokens)
				r.Delete("/{tokenID}", h.DeleteToken)
			})
		})
	})

	return r
}
