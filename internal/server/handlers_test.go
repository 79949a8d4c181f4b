package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auhlig/homematicip-exporter/internal/health"
	"github.com/auhlig/homematicip-exporter/internal/metrics"
	"github.com/auhlig/homematicip-exporter/pkg/device"
)

type failingComponent struct{}

func (failingComponent) ComponentName() string { return "access_point_session" }

func (failingComponent) CheckHealth(ctx context.Context) error {
	return errors.New("session state is failed")
}

func newTestServer(t *testing.T) (*Server, *metrics.Registry, *health.HealthChecker) {
	t.Helper()
	registry := metrics.NewRegistry()
	checker := health.NewHealthChecker()
	return New(0, registry, checker), registry, checker
}

func TestMetricsEndpoint(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	desc, _ := metrics.DescriptorFor(device.MetricTemperatureActual)
	if err := registry.Update(desc, []string{"d1", "Heizung Bad", "Bad"}, 22.5); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `temperature_actual{device_id="d1",device_label="Heizung Bad",room="Bad"} 22.5`) {
		t.Errorf("Expected device series in exposition, got:\n%s", body)
	}
	// The handler instruments itself on the same registry.
	if !strings.Contains(body, "promhttp_metric_handler_requests_in_flight") {
		t.Error("Expected handler self-metrics in exposition")
	}
}

func TestLivenessEndpoint(t *testing.T) {
	srv, _, checker := newTestServer(t)
	checker.RegisterComponent(failingComponent{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	// Liveness stays green even with a failing component.
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("Expected body ok, got %q", rec.Body.String())
	}
}

func TestReadinessEndpointNotReady(t *testing.T) {
	srv, _, checker := newTestServer(t)
	checker.RegisterComponent(failingComponent{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestReadinessEndpointReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, checker := newTestServer(t)
	checker.RegisterComponent(failingComponent{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	var status health.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if status.Overall != health.StatusUnhealthy {
		t.Errorf("Expected overall unhealthy, got %s", status.Overall)
	}
	if _, ok := status.Checks["access_point_session"]; !ok {
		t.Error("Expected access_point_session check result")
	}
}

func TestDebugEndpoint(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	desc, _ := metrics.DescriptorFor(device.MetricValvePosition)
	if err := registry.Register(desc); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var payload struct {
		Descriptors []struct {
			Name   string   `json:"name"`
			Labels []string `json:"labels"`
		} `json:"descriptors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode debug response: %v", err)
	}

	if len(payload.Descriptors) != 1 || payload.Descriptors[0].Name != "valve_position" {
		t.Errorf("Expected valve_position descriptor, got %+v", payload.Descriptors)
	}
}
