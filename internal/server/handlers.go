package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/auhlig/homematicip-exporter/internal/health"
)

// HealthHandler reports the detailed health status of all components.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.checker.GetHealthStatus(r.Context())

	code := http.StatusOK
	if status.Overall == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("failed to encode health status", "error", err)
	}
}

// LivenessHandler reports process liveness. It stays healthy even when the
// access point is unreachable so a supervisor never restarts the exporter
// for downstream flakiness.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checker.LivenessCheck(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler reports whether all components are ready.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checker.ReadinessCheck(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// StartupHandler reports startup progress with a grace period for the
// initial collection cycle.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checker.StartupCheck(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("started"))
}

// DebugHandler exposes the registered metric descriptors for
// troubleshooting label schema issues.
func (s *Server) DebugHandler(w http.ResponseWriter, r *http.Request) {
	type descriptorInfo struct {
		Name   string   `json:"name"`
		Help   string   `json:"help"`
		Labels []string `json:"labels"`
	}

	descriptors := s.registry.Descriptors()
	out := make([]descriptorInfo, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, descriptorInfo{
			Name:   desc.Name.String(),
			Help:   desc.Help,
			Labels: desc.Labels,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"descriptors": out,
	}); err != nil {
		slog.Error("failed to encode debug info", "error", err)
	}
}
