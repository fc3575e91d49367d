package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/bitecare-clinic/internal/bookings"
	"github.com/wolfman30/bitecare-clinic/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/bitecare-clinic/internal/http/middleware"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BookingsHandler    *bookings.Handler
	AdminSlots         *handlers.AdminSlotsHandler
	AdminAudit         *handlers.AdminAuditHandler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// EventStream is served at /admin/events/stream behind the admin JWT.
	EventStream http.Handler

	// HealthCheck reports dependency health for /health (optional).
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Operational endpoints
	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient-facing booking API
	if cfg.BookingsHandler != nil {
		r.Group(func(public chi.Router) {
			if cfg.RateLimiter != nil {
				public.Use(cfg.RateLimiter.Middleware)
			}
			cfg.BookingsHandler.Register(public)
		})
	}

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminSlots != nil {
				cfg.AdminSlots.Register(admin)
			}
			if cfg.AdminAudit != nil {
				cfg.AdminAudit.Register(admin)
			}
			if cfg.EventStream != nil {
				admin.Handle("/events/stream", cfg.EventStream)
			}
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
