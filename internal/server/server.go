// Package server provides the HTTP server and routing for Frontier.
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

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/allocation"
	allocationhandlers "github.com/aristath/frontier/internal/modules/allocation/handlers"
	historicalhandlers "github.com/aristath/frontier/internal/modules/historical/handlers"
	"github.com/aristath/frontier/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/modules/universe"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB // optional; enables run history and database stats
	Config    *config.Config
	Port      int
	DevMode   bool

	Optimizer *optimization.OptimizerService
	Allocator *allocation.DiscreteAllocator
	Runs      optimizationhandlers.RunStore // optional

	// Price store routes; mounted when History is set
	History   *universe.HistoryDB
	Validator *universe.PriceValidator
	Estimator *optimization.Estimator
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	historyDB      *database.DB
	cfg            *config.Config
	port           int
	optimizer      *optimization.OptimizerService
	allocator      *allocation.DiscreteAllocator
	runs           optimizationhandlers.RunStore
	historical     *historicalhandlers.Handler
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		historyDB:      cfg.HistoryDB,
		cfg:            cfg.Config,
		port:           cfg.Port,
		optimizer:      cfg.Optimizer,
		allocator:      cfg.Allocator,
		runs:           cfg.Runs,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.HistoryDB),
	}
	if cfg.History != nil {
		s.historical = historicalhandlers.NewHandler(cfg.History, cfg.Validator, cfg.Estimator, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout(cfg.Config) + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(requestTimeout(s.cfg)))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// requestTimeout gives a run room for every solver call plus overhead.
func requestTimeout(cfg *config.Config) time.Duration {
	timeout := 60 * time.Second
	if cfg != nil && cfg.Optimizer.SolverTimeout > 0 {
		if t := 5*cfg.Optimizer.SolverTimeout + 10*time.Second; t > timeout {
			timeout = t
		}
	}
	return timeout
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})

		if s.optimizer != nil {
			optimizationhandlers.NewHandler(s.optimizer, s.runs, s.log).RegisterRoutes(r)
		}
		if s.allocator != nil {
			allocationhandlers.NewHandler(s.allocator, s.log).RegisterRoutes(r)
		}
		if s.historical != nil {
			s.historical.RegisterRoutes(r)
		}
	})
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
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
