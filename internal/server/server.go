package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/engine"
	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/metrics"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// HTTPServer exposes the administrative and dispatch API
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	dispatcher     *engine.Dispatcher
	processor      *engine.Processor
	gateways       *gateway.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	version        string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	dispatcher *engine.Dispatcher,
	processor *engine.Processor,
	gateways *gateway.Manager,
	metricsManager *metrics.Manager,
	version string,
) *HTTPServer {
	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		dispatcher:     dispatcher,
		processor:      processor,
		gateways:       gateways,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		version:        version,
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Event registrations
	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/events", s.createEventHandler).Methods("POST")
	api.HandleFunc("/events/trigger", s.triggerEventHandler).Methods("POST")

	// Direct dispatch
	api.HandleFunc("/dispatch", s.dispatchHandler).Methods("POST")

	// Templates
	api.HandleFunc("/templates", s.listTemplatesHandler).Methods("GET")
	api.HandleFunc("/templates", s.createTemplateHandler).Methods("POST")
	api.HandleFunc("/templates/{id:[0-9]+}", s.getTemplateHandler).Methods("GET")
	api.HandleFunc("/templates/{id:[0-9]+}", s.updateTemplateHandler).Methods("PUT")
	api.HandleFunc("/templates/{id:[0-9]+}", s.deleteTemplateHandler).Methods("DELETE")

	// Workflows
	api.HandleFunc("/workflows", s.listWorkflowsHandler).Methods("GET")
	api.HandleFunc("/workflows", s.createWorkflowHandler).Methods("POST")
	api.HandleFunc("/workflows/{id:[0-9]+}", s.getWorkflowHandler).Methods("GET")
	api.HandleFunc("/workflows/{id:[0-9]+}", s.updateWorkflowHandler).Methods("PUT")
	api.HandleFunc("/workflows/{id:[0-9]+}", s.deleteWorkflowHandler).Methods("DELETE")

	// Gateways
	api.HandleFunc("/gateways", s.listGatewaysHandler).Methods("GET")
	api.HandleFunc("/gateways", s.createGatewayHandler).Methods("POST")
	api.HandleFunc("/gateways/{id:[0-9]+}", s.getGatewayHandler).Methods("GET")
	api.HandleFunc("/gateways/{id:[0-9]+}", s.updateGatewayHandler).Methods("PUT")
	api.HandleFunc("/gateways/{id:[0-9]+}", s.deleteGatewayHandler).Methods("DELETE")
	api.HandleFunc("/gateways/{id:[0-9]+}/test", s.testGatewayHandler).Methods("POST")

	// Queue
	api.HandleFunc("/queue", s.listQueueHandler).Methods("GET")
	api.HandleFunc("/queue/process", s.processQueueHandler).Methods("POST")
	api.HandleFunc("/queue/{id}", s.getQueueItemHandler).Methods("GET")
	api.HandleFunc("/queue/{id}/cancel", s.cancelQueueItemHandler).Methods("POST")

	// Preferences
	api.HandleFunc("/preferences/{userID:[0-9]+}", s.listPreferencesHandler).Methods("GET")
	api.HandleFunc("/preferences/{userID:[0-9]+}", s.savePreferenceHandler).Methods("PUT")
	api.HandleFunc("/preferences/{userID:[0-9]+}/resolved/{eventKey}", s.resolvedChannelsHandler).Methods("GET")

	// Audit log
	api.HandleFunc("/audit", s.listAuditHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		health := s.storage.GetHealth()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", health.Healthy)
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		health := s.storage.GetHealth()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", health.Healthy)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealth := s.storage.GetHealth()

	status := "healthy"
	code := http.StatusOK
	if !storageHealth.Healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
		"components": map[string]interface{}{
			"storage": storageHealth,
		},
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now(),
		"storage":   storageStats,
	}
	if s.metricsManager != nil {
		stats["uptime_seconds"] = s.metricsManager.Uptime().Seconds()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
