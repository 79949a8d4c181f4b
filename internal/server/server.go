// Package server provides the HTTP exposition endpoint of the exporter.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auhlig/homematicip-exporter/internal/health"
	"github.com/auhlig/homematicip-exporter/internal/metrics"
)

// Server serves the metric registry and the health endpoints. Scrapes read
// the registry directly and never depend on collection timing.
type Server struct {
	port     int
	registry *metrics.Registry
	checker  *health.HealthChecker
}

// New creates a server for the given registry and health checker.
func New(port int, registry *metrics.Registry, checker *health.HealthChecker) *Server {
	return &Server{
		port:     port,
		registry: registry,
		checker:  checker,
	}
}

// Routes configures the HTTP routes of the exporter.
func (s *Server) Routes() *http.ServeMux {
	metricsHandler := promhttp.InstrumentMetricHandler(
		s.registry.Registerer(),
		promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{
			MaxRequestsInFlight: 10,
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/livez", s.LivenessHandler)
	mux.HandleFunc("/readyz", s.ReadinessHandler)
	mux.HandleFunc("/startupz", s.StartupHandler)
	mux.HandleFunc("/debug", s.DebugHandler)
	return mux
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully, letting in-flight scrape responses complete.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("exposition endpoint ready", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
