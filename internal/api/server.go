// Package api provides the HTTP boundary of gvmbridge. It exposes scan
// launch, status and results endpoints backed by the scan orchestrator,
// plus health and Prometheus metrics endpoints.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/gvmbridge/internal/api/handlers"
	"github.com/anstrom/gvmbridge/internal/api/middleware"
	"github.com/anstrom/gvmbridge/internal/config"
	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/metrics"
	"github.com/anstrom/gvmbridge/internal/scan"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	serverReadTimeout     = 10 * time.Second
	serverIdleTimeout     = 60 * time.Second
)

// StorePinger aliases the handlers' store health-check dependency so
// callers can wire the server without importing the handlers package.
type StorePinger = apihandlers.StorePinger

// Server represents the API server.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	config       *config.Config
	orchestrator *scan.Orchestrator
	store        apihandlers.StorePinger
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// New creates a new API server. The store pinger may be nil when the
// registry runs without persistence.
func New(cfg *config.Config, orchestrator *scan.Orchestrator, store apihandlers.StorePinger) *Server {
	server := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		orchestrator: orchestrator,
		store:        store,
		logger:       logging.Default().WithComponent("api"),
		metrics:      metrics.GetGlobalMetrics(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:      server.router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: cfg.API.RequestTimeout + time.Second,
		IdleTimeout:  serverIdleTimeout,
	}

	return server
}

// Start starts the API server and blocks until the context is canceled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Router returns the configured router, used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the server listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	scanHandler := apihandlers.NewScanHandler(s.orchestrator)
	healthHandler := apihandlers.NewHealthHandler(s.orchestrator.Registry(), s.store)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/liveness", healthHandler.Liveness).Methods("GET")
	api.HandleFunc("/health", healthHandler.Health).Methods("GET")

	api.HandleFunc("/scans", scanHandler.TriggerScan).Methods("POST")
	api.HandleFunc("/scans", scanHandler.ListScans).Methods("GET")
	api.HandleFunc("/scans/{id}", scanHandler.GetScan).Methods("GET")
	api.HandleFunc("/scans/{id}/results", scanHandler.GetResults).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger, s.metrics))
	s.router.Use(middleware.Timeout(s.config.API.RequestTimeout))

	if s.config.API.CORS.Enabled {
		corsOptions := handlers.AllowedOrigins(s.config.API.CORS.AllowedOrigins)
		corsHeaders := handlers.AllowedHeaders(s.config.API.CORS.AllowedHeaders)
		corsMethods := handlers.AllowedMethods(s.config.API.CORS.AllowedMethods)
		s.router.Use(handlers.CORS(corsOptions, corsHeaders, corsMethods))
	}
}
