// Package api provides the HTTP API of the departure board.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/departureboard/departureboard/internal/api/handler"
	"github.com/departureboard/departureboard/internal/api/middleware"
	"github.com/departureboard/departureboard/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// Board serves snapshots; required.
	Board handler.Board
	// Providers reports upstream health on /v1/ops/status (optional).
	Providers handler.ProviderHealth
	// Trigger backs POST /v1/ops/poll (optional).
	Trigger handler.PollTrigger

	// Walking and Buffer are the configured leave-now margins.
	Walking time.Duration
	Buffer  time.Duration

	// CORSOrigins lists allowed browser origins; empty allows any.
	CORSOrigins []string
	RequireTLS  bool

	// Now overrides the clock (tests).
	Now func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route "+r.URL.Path)
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	dashboardHandler := handler.NewDashboardHandler(handler.DashboardConfig{
		Board:   cfg.Board,
		Walking: cfg.Walking,
		Buffer:  cfg.Buffer,
		Now:     cfg.Now,
	})
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Board:     cfg.Board,
		Providers: cfg.Providers,
		Trigger:   cfg.Trigger,
		Now:       cfg.Now,
	})

	dataRateLimit := middleware.RateLimitByIP(middleware.DataRateLimit)
	pollRateLimit := middleware.RateLimitByIP(middleware.PollRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints are probed by the platform and are not rate limited
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
			r.With(pollRateLimit).Post("/poll", opsHandler.TriggerPoll)
		})

		r.Group(func(r chi.Router) {
			r.Use(dataRateLimit)
			r.Get("/dashboard", dashboardHandler.Dashboard)
			r.Get("/transit", dashboardHandler.Transit)
			r.Get("/bikeshare", dashboardHandler.Bikeshare)
			r.Get("/weather", dashboardHandler.Weather)
			r.Get("/air-quality", dashboardHandler.AirQuality)
			r.Get("/sun", dashboardHandler.Sun)
			r.Get("/alerts", dashboardHandler.Alerts)
			r.Get("/leave-now", dashboardHandler.LeaveNow)
		})
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "traceparent"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}
}
