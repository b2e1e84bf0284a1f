// Package server wires every HTTP-facing handler onto a chi router behind
// the shared middleware stack (auth, rate limiting, logging, recovery),
// following the teacher's per-module route-setup convention.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/auth"
)

// Config holds everything Server needs to mount its routes. Every handler
// is built by main.go's wiring root and handed in fully constructed,
// matching the dependency-injection boundary the rest of the system uses.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DevMode bool
	DB      *sql.DB

	AuthMiddleware *auth.Middleware

	Auth        *AuthHandler
	Assets      *AssetsHandler
	NetWorth    *NetWorthHandler
	Forecasting *ForecastingHandler
	Insights    *InsightsHandler
	Alerts      *AlertsHandler
	Upload      *UploadHandler
	Sync        *SyncHandler
	Aggregator  *AggregatorHandler
	Stream      *StreamHub
}

// Server wraps the chi router and the shared HTTP server it's bound to.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	db     *sql.DB
	port   int

	startedAt        time.Time
	schedulerStarted bool
}

// New builds a Server from cfg and mounts every route.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		db:        cfg.DB,
		port:      cfg.Port,
		startedAt: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generous enough for the websocket stream upgrade
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// MarkSchedulerStarted records that the background scheduler is running,
// surfaced by /health.
func (s *Server) MarkSchedulerStarted() {
	s.schedulerStarted = true
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes mounts /health and every /api/* route group, splitting
// auth-required routes from the small unauthenticated allowlist (§6).
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.handleHealth)

	globalLimiter := newRateLimiter(200, 15*time.Minute, cfg.Log)
	authLimiter := newRateLimiter(20, 15*time.Minute, cfg.Log)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(globalLimiter.handler)

		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.handler)
			cfg.Auth.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequireAuth)
				cfg.Auth.RegisterAuthedRoutes(r)
			})
		})

		// /plaid/webhook is the one aggregator route that must stay
		// unauthenticated (the aggregator, not a logged-in user, calls it);
		// every other /plaid/* route requires a session.
		r.Route("/plaid", func(r chi.Router) {
			cfg.Aggregator.RegisterWebhookRoute(r)

			r.Group(func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequireAuth)
				cfg.Aggregator.RegisterRoutes(r)
			})
		})

		// Everything else requires an authenticated session.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuth)

			r.Route("/assets", cfg.Assets.RegisterRoutes)
			r.Route("/insurance", cfg.Assets.RegisterInsuranceRoutes)
			r.Route("/networth", cfg.NetWorth.RegisterRoutes)
			r.Route("/forecasting", cfg.Forecasting.RegisterRoutes)
			r.Route("/insights", cfg.Insights.RegisterRoutes)
			r.Route("/alerts", cfg.Alerts.RegisterRoutes)
			r.Route("/upload", cfg.Upload.RegisterRoutes)
			r.Route("/sync", cfg.Sync.RegisterRoutes)

			r.Get("/events/stream", cfg.Stream.HandleStream)
		})
	})
}

// Start runs the HTTP server until it's shut down.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Addr exposes the configured listen address, primarily for logging.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
