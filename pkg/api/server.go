package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/mempoolwatch/pkg/api/middleware"
	"github.com/0xmhha/mempoolwatch/pkg/health"
	"github.com/0xmhha/mempoolwatch/pkg/subscription"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Server exposes the introspection HTTP API: endpoint health, live
// subscription stats and Prometheus metrics.
type Server struct {
	config     *Config
	logger     *zap.Logger
	health     *health.Manager
	controller *subscription.Controller
	router     *chi.Mux
	server     *http.Server
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, healthManager *health.Manager, controller *subscription.Controller) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:     config,
		logger:     logger.Named("api"),
		health:     healthManager,
		controller: controller,
		router:     chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if len(s.config.APIKeys) > 0 {
		s.router.Use(apimiddleware.APIKeyAuth(apimiddleware.AuthConfig{
			APIKeys: s.config.APIKeys,
			AllowedPaths: map[string]bool{
				"/health":  true,
				"/metrics": true,
			},
		}, s.logger))
		s.logger.Info("API key authentication enabled",
			zap.Int("keys", len(s.config.APIKeys)),
		)
	}

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/subscriptions", s.handleSubscriptions)
	s.router.Get("/subscriptions/{id}", s.handleSubscription)
	s.router.Handle("/metrics", promhttp.Handler())
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                        `json:"status"`
	Timestamp string                        `json:"timestamp"`
	Endpoints map[string]types.HealthRecord `json:"endpoints,omitempty"`
}

// handleHealth reports server liveness plus the cached per-endpoint
// health records, keyed by "<chainID>:<url>".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if s.health != nil {
		response.Endpoints = s.health.Snapshot()
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"version":"1.0.0","name":"mempoolwatch"}`)
}

// SubscriptionsResponse represents the subscriptions list response
type SubscriptionsResponse struct {
	TotalCount    int                     `json:"total_count"`
	Subscriptions []subscription.Snapshot `json:"subscriptions"`
}

// handleSubscriptions lists every live subscription with its stats.
func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	snapshots := s.controller.Snapshots()
	response := SubscriptionsResponse{
		TotalCount:    len(snapshots),
		Subscriptions: snapshots,
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleSubscription returns one subscription by ID.
func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := chi.URLParam(r, "id")
	snapshot, err := s.controller.Snapshot(id)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "subscription not found"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snapshot)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("address", s.config.Address()))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
