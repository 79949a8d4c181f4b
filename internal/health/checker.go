// Package health provides health checking for the exporter's components.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auhlig/homematicip-exporter/internal/api"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check for one component.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthStatus represents the overall status and the individual checks.
type HealthStatus struct {
	Overall Status                 `json:"overall"`
	Checks  map[string]CheckResult `json:"checks"`
}

// ComponentChecker is implemented by everything that wants to participate
// in readiness and health reporting.
type ComponentChecker interface {
	CheckHealth(ctx context.Context) error
	ComponentName() string
}

// HealthChecker manages health checks for multiple components.
type HealthChecker struct {
	mu          sync.RWMutex
	components  map[string]ComponentChecker
	startupTime time.Time
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		components:  make(map[string]ComponentChecker),
		startupTime: time.Now(),
	}
}

// RegisterComponent adds a component to readiness and health reporting.
func (hc *HealthChecker) RegisterComponent(checker ComponentChecker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[checker.ComponentName()] = checker
}

// LivenessCheck reports whether the process itself is responsive. It has
// no external dependencies; a broken session must not make the exporter
// unscrapeable.
func (hc *HealthChecker) LivenessCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ReadinessCheck verifies all registered components.
func (hc *HealthChecker) ReadinessCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for name, component := range hc.snapshotComponents() {
		if err := component.CheckHealth(ctx); err != nil {
			return fmt.Errorf("component %s not ready: %w", name, err)
		}
	}
	return nil
}

// StartupCheck is lenient during the first 30 seconds so the collector can
// finish its initial cycle before readiness is enforced.
func (hc *HealthChecker) StartupCheck(ctx context.Context) error {
	if time.Since(hc.startupTime) < 30*time.Second {
		return hc.LivenessCheck(ctx)
	}
	return hc.ReadinessCheck(ctx)
}

// GetHealthStatus runs every component check and reports the aggregate.
func (hc *HealthChecker) GetHealthStatus(ctx context.Context) HealthStatus {
	results := make(map[string]CheckResult)
	overall := StatusHealthy

	for name, component := range hc.snapshotComponents() {
		start := time.Now()
		err := component.CheckHealth(ctx)
		duration := time.Since(start)

		status := StatusHealthy
		message := ""
		if err != nil {
			status = StatusUnhealthy
			message = err.Error()
			overall = StatusUnhealthy
		} else if duration > 5*time.Second {
			status = StatusDegraded
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}

		results[name] = CheckResult{
			Component: name,
			Status:    status,
			Message:   message,
			Duration:  duration,
			Timestamp: time.Now(),
		}
	}

	return HealthStatus{Overall: overall, Checks: results}
}

func (hc *HealthChecker) snapshotComponents() map[string]ComponentChecker {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	components := make(map[string]ComponentChecker, len(hc.components))
	for name, comp := range hc.components {
		components[name] = comp
	}
	return components
}

// SessionHealthChecker reports the session's connection state without
// issuing API calls, so health checks never consume API rate budget.
type SessionHealthChecker struct {
	session *api.Session
}

// NewSessionHealthChecker creates a session health checker.
func NewSessionHealthChecker(session *api.Session) *SessionHealthChecker {
	return &SessionHealthChecker{session: session}
}

func (sc *SessionHealthChecker) ComponentName() string {
	return "access_point_session"
}

func (sc *SessionHealthChecker) CheckHealth(ctx context.Context) error {
	if sc.session == nil {
		return fmt.Errorf("session not initialized")
	}
	if state := sc.session.ConnectionState(); state != api.StateConnected {
		return fmt.Errorf("session state is %s", state)
	}
	return nil
}

// CollectorHealthChecker reports whether collection cycles are completing.
// The collector is considered unhealthy once three intervals pass without a
// successful cycle.
type CollectorHealthChecker struct {
	lastSuccess func() time.Time
	lastError   func() error
	interval    time.Duration
}

// NewCollectorHealthChecker creates a collector health checker from the
// collector's introspection accessors.
func NewCollectorHealthChecker(lastSuccess func() time.Time, lastError func() error, interval time.Duration) *CollectorHealthChecker {
	return &CollectorHealthChecker{
		lastSuccess: lastSuccess,
		lastError:   lastError,
		interval:    interval,
	}
}

func (cc *CollectorHealthChecker) ComponentName() string {
	return "collector"
}

func (cc *CollectorHealthChecker) CheckHealth(ctx context.Context) error {
	last := cc.lastSuccess()
	if last.IsZero() {
		if err := cc.lastError(); err != nil {
			return fmt.Errorf("no successful collection cycle yet: %w", err)
		}
		return fmt.Errorf("no successful collection cycle yet")
	}
	if age := time.Since(last); age > 3*cc.interval {
		return fmt.Errorf("last successful cycle is %s old", age.Round(time.Second))
	}
	return nil
}
