package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/clock"
)

// A relay may poll the attestation service for its whole budget and then wait for the
// mint receipt, so responses are allowed far longer than a plain CRUD call.
const writeTimeout = 10 * time.Minute

type TickReader interface {
	GetLastTick(ctx context.Context) (*time.Time, error)
}

// Server represents the API server
type Server struct {
	relayHandler     *RelayHandler
	executionHandler *ExecutionHandler
	infoHandler      *InfoHandler
	ticks            TickReader
	clock            clock.Clock
	logger           *zap.Logger
	server           *http.Server
}

// NewServer creates a new API server
func NewServer(port int, relayHandler *RelayHandler, executionHandler *ExecutionHandler, infoHandler *InfoHandler, ticks TickReader, clk clock.Clock, logger *zap.Logger) *Server {
	s := &Server{
		relayHandler:     relayHandler,
		executionHandler: executionHandler,
		infoHandler:      infoHandler,
		ticks:            ticks,
		clock:            clk,
		logger:           logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.server.Handler = s.setupRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Relay
	api.HandleFunc("/relay", s.relayHandler.Relay).Methods("POST", "OPTIONS")

	// Executions
	api.HandleFunc("/executions", s.executionHandler.ListExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", s.executionHandler.GetExecution).Methods("GET")
	api.HandleFunc("/executions/{id}/resume", s.executionHandler.ResumeExecution).Methods("POST", "OPTIONS")

	api.HandleFunc("/info", s.infoHandler.GetInfo).Methods("GET")
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck reports healthy while the ledger is reachable, with the last scheduler tick
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "healthy",
		Time:   s.clock.Now().UTC(),
	}

	lastTick, err := s.ticks.GetLastTick(r.Context())
	if err != nil {
		s.logger.Error("Failed to read scheduler state", zap.Error(err))
		response.Status = "unhealthy"
		writeJSONResponse(w, s.logger, http.StatusServiceUnavailable, response)
		return
	}
	response.LastSchedulerTick = lastTick

	writeJSONResponse(w, s.logger, http.StatusOK, response)
}
