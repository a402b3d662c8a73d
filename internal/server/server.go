// Package server provides the HTTP server and routing for madfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/madfolio/internal/modules/optimization/handlers"
	"github.com/aristath/madfolio/internal/modules/pricedata"
	pricedatahandlers "github.com/aristath/madfolio/internal/modules/pricedata/handlers"
	"github.com/aristath/madfolio/internal/modules/valuation"
	valuationhandlers "github.com/aristath/madfolio/internal/modules/valuation/handlers"
	"github.com/aristath/madfolio/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	Databases    []*database.DB // reported by /api/system/status
	Scheduler    *scheduler.Scheduler
	Prices       *pricedata.Store
	Optimization *optimization.Service
	Valuation    *valuation.Service
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	prices         *pricedata.Store
	optimization   *optimization.Service
	valuation      *valuation.Service
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		prices:         cfg.Prices,
		optimization:   cfg.Optimization,
		valuation:      cfg.Valuation,
		systemHandlers: NewSystemHandlers(cfg.Log, jobReporter(cfg.Scheduler), cfg.Databases...),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// frontier sweeps and rebalance MILPs can take a while
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// jobReporter keeps a nil scheduler from becoming a non-nil interface.
func jobReporter(s *scheduler.Scheduler) JobReporter {
	if s == nil {
		return nil
	}
	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		if s.optimization != nil {
			optimizationhandlers.NewHandler(s.optimization, s.log).RegisterRoutes(r)
		}
		if s.valuation != nil {
			valuationhandlers.NewHandler(s.valuation, s.log).RegisterRoutes(r)
		}
		if s.prices != nil {
			pricedatahandlers.NewHandler(s.prices, s.log).RegisterRoutes(r)
		}
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
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
			Msg("HTTP request")
	})
}
