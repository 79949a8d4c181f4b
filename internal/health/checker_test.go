package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeComponent struct {
	name string
	err  error
}

func (f *fakeComponent) ComponentName() string { return f.name }

func (f *fakeComponent) CheckHealth(ctx context.Context) error { return f.err }

func TestLivenessCheck(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterComponent(&fakeComponent{name: "broken", err: errors.New("down")})

	// Liveness ignores component health entirely.
	if err := hc.LivenessCheck(context.Background()); err != nil {
		t.Errorf("Expected liveness to pass, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hc.LivenessCheck(ctx); err == nil {
		t.Error("Expected liveness to fail on cancelled context")
	}
}

func TestReadinessCheck(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterComponent(&fakeComponent{name: "good"})

	if err := hc.ReadinessCheck(context.Background()); err != nil {
		t.Errorf("Expected readiness to pass, got %v", err)
	}

	hc.RegisterComponent(&fakeComponent{name: "broken", err: errors.New("down")})
	if err := hc.ReadinessCheck(context.Background()); err == nil {
		t.Error("Expected readiness to fail with unhealthy component")
	}
}

func TestStartupCheckGracePeriod(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterComponent(&fakeComponent{name: "slow", err: errors.New("not ready yet")})

	// Within the grace period startup only requires liveness.
	if err := hc.StartupCheck(context.Background()); err != nil {
		t.Errorf("Expected startup to pass during grace period, got %v", err)
	}

	hc.startupTime = time.Now().Add(-time.Minute)
	if err := hc.StartupCheck(context.Background()); err == nil {
		t.Error("Expected startup to enforce readiness after grace period")
	}
}

func TestGetHealthStatus(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterComponent(&fakeComponent{name: "good"})
	hc.RegisterComponent(&fakeComponent{name: "broken", err: errors.New("down")})

	status := hc.GetHealthStatus(context.Background())

	if status.Overall != StatusUnhealthy {
		t.Errorf("Expected overall unhealthy, got %s", status.Overall)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("Expected 2 check results, got %d", len(status.Checks))
	}
	if status.Checks["good"].Status != StatusHealthy {
		t.Errorf("Expected good component healthy, got %s", status.Checks["good"].Status)
	}
	if status.Checks["broken"].Message != "down" {
		t.Errorf("Expected failure message, got %q", status.Checks["broken"].Message)
	}
}

func TestSessionHealthCheckerWithoutSession(t *testing.T) {
	checker := NewSessionHealthChecker(nil)
	if err := checker.CheckHealth(context.Background()); err == nil {
		t.Error("Expected error for missing session")
	}
}

func TestCollectorHealthChecker(t *testing.T) {
	interval := 10 * time.Second

	tests := []struct {
		name        string
		lastSuccess time.Time
		lastError   error
		wantErr     bool
	}{
		{"recent success", time.Now(), nil, false},
		{"no cycle yet", time.Time{}, nil, true},
		{"no cycle yet with error", time.Time{}, errors.New("fetch failed"), true},
		{"stale success", time.Now().Add(-time.Minute), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCollectorHealthChecker(
				func() time.Time { return tt.lastSuccess },
				func() error { return tt.lastError },
				interval,
			)

			err := checker.CheckHealth(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
