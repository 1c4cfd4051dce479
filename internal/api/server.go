// Package api exposes the engine's operational HTTP surface: alert listing,
// acknowledge/resolve, threshold updates, statistics, health, and Prometheus
// metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
	"github.com/sentinelops/alerting-engine/pkg/logging"
)

// Engine is the subset of the alerting engine the API depends on
type Engine interface {
	GetActiveAlerts() []*alerting.Alert
	Acknowledge(id string) bool
	Resolve(id string) bool
	UpdateThreshold(metric string, update alerting.ThresholdUpdate) (bool, error)
	GetStatistics() alerting.EngineStatistics
	Running() bool
	LastTick() time.Time
}

// Server serves the operational API
type Server struct {
	engine Engine
	logger *logging.StructuredLogger
	router *mux.Router
}

// NewServer builds the API server and its routes
func NewServer(engine Engine, logger *logging.StructuredLogger) *Server {
	s := &Server{
		engine: engine,
		logger: logger.WithComponent("api-server"),
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/{id}/resolve", s.handleResolve).Methods(http.MethodPost)
	v1.HandleFunc("/thresholds/{metric}", s.handleUpdateThreshold).Methods(http.MethodPut)
	v1.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": s.engine.GetActiveAlerts(),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.engine.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "id": id})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.engine.Resolve(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true, "id": id})
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]

	var update alerting.ThresholdUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid threshold update payload")
		return
	}

	updated, err := s.engine.UpdateThreshold(metric, update)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "unknown metric")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "metric": metric})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStatistics())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.engine.Running() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"running":   s.engine.Running(),
		"last_tick": s.engine.LastTick(),
	})
}

// loggingMiddleware logs each request with its status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.LogHTTPRequest(r.Method, r.URL.Path, recorder.status, time.Since(start))
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
