package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/auhlig/homematicip-exporter/internal/api"
	"github.com/auhlig/homematicip-exporter/internal/config"
	apperrors "github.com/auhlig/homematicip-exporter/internal/errors"
	"github.com/auhlig/homematicip-exporter/pkg/device"
)

// StateSource is the access point session as the collector sees it: one
// fetch operation plus re-authentication for rejected credentials.
type StateSource interface {
	FetchCurrentState(ctx context.Context) (*device.Snapshot, error)
	Reauthenticate(ctx context.Context) error
	ConnectionState() api.ConnectionState
}

// Collector runs the periodic fetch/adapt/update cycle against the metric
// registry. All cycles run on a single goroutine, so a later cycle never
// races an earlier one into the registry.
type Collector struct {
	interval     time.Duration
	fetchTimeout time.Duration
	source       StateSource
	registry     *Registry
	tracker      *DeviceTracker
	exporter     *ExporterMetrics
	events       <-chan api.Event
	eventLimiter *rate.Limiter

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     error
}

// NewCollector creates a collector writing into the given registry.
func NewCollector(cfg config.Config, source StateSource, registry *Registry) *Collector {
	return &Collector{
		interval:     cfg.CollectInterval,
		fetchTimeout: cfg.FetchTimeout,
		source:       source,
		registry:     registry,
		tracker:      NewDeviceTracker(cfg.EvictionCycles),
		exporter:     NewExporterMetrics(registry.Registerer()),
		eventLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// WithEvents makes push events trigger early collection cycles. Forced
// cycles are rate limited so an event storm cannot hammer the cloud API.
func (c *Collector) WithEvents(events <-chan api.Event) *Collector {
	c.events = events
	return c
}

// Run executes collection cycles until the context is cancelled. A failed
// cycle never stops the loop; the next tick retries at the normal
// interval.
func (c *Collector) Run(ctx context.Context) error {
	slog.Info("collector started", "interval", c.interval)

	if err := c.RunCycle(ctx); err != nil {
		slog.Warn("initial collection cycle failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.RunCycle(ctx); err != nil {
				slog.Warn("collection cycle failed", "error", err)
			}
		case ev, ok := <-c.events:
			if !ok {
				c.events = nil
				continue
			}
			c.exporter.WebsocketEvents.WithLabelValues(ev.Type).Inc()
			if !c.eventLimiter.Allow() {
				continue
			}
			slog.Debug("push event triggered early cycle", "type", ev.Type)
			if err := c.RunCycle(ctx); err != nil {
				slog.Warn("event-triggered cycle failed", "error", err)
			}
		}
	}
}

// RunCycle performs one fetch/adapt/update cycle. On fetch failure the
// registry is left untouched so previously observed values stay readable.
func (c *Collector) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		c.exporter.CollectDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := c.fetch(ctx)
	if err != nil {
		c.setLastErr(err)
		return err
	}

	readings, stats := Adapt(snap)

	if snap.Home.CurrentAPVersion != "" {
		if err := c.registry.Update(InfoDescriptor, []string{snap.Home.CurrentAPVersion}, 1); err != nil {
			slog.Error("info metric update failed", "error", err)
		}
	}

	present := make(map[string]struct{})
	for _, rd := range readings {
		desc, ok := DescriptorFor(rd.Metric)
		if !ok {
			slog.Error("reading references metric outside the catalog", "metric", rd.Metric)
			stats.SkippedReadings++
			continue
		}

		labelValues := []string{rd.DeviceID.String(), rd.DeviceLabel.String(), rd.Room.String()}
		if err := c.registry.Update(desc, labelValues, rd.Value); err != nil {
			slog.Error("metric update failed",
				"metric", rd.Metric, "device", rd.DeviceLabel, "error", err)
			c.exporter.CollectErrors.WithLabelValues(ReasonSchemaConflict).Inc()
			continue
		}
		present[rd.DeviceID.String()] = struct{}{}
	}

	for _, id := range c.tracker.Observe(present) {
		removed := c.registry.RemoveDevice(id)
		c.exporter.EvictedDevices.Inc()
		slog.Info("evicted stale device metrics", "device_id", id, "series", removed)
	}

	c.exporter.DeviceCount.Set(float64(len(snap.Devices)))
	if stats.UnknownChannels > 0 {
		c.exporter.SkippedObjects.WithLabelValues(SkipUnknownType).Add(float64(stats.UnknownChannels))
	}
	if stats.MalformedObjects+stats.SkippedReadings > 0 {
		c.exporter.SkippedObjects.WithLabelValues(SkipMalformed).Add(float64(stats.MalformedObjects + stats.SkippedReadings))
	}
	c.exporter.LastCollectTime.Set(float64(time.Now().Unix()))
	c.setLastSuccess(time.Now())

	slog.Debug("collection cycle complete",
		"devices", len(snap.Devices),
		"groups", len(snap.Groups),
		"readings", len(readings),
		"duration", time.Since(start))
	return nil
}

// fetch retrieves one snapshot with a bounded timeout. A rejected token
// gets exactly one re-authentication attempt within the cycle; any further
// failure is left to the next tick.
func (c *Collector) fetch(ctx context.Context) (*device.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	snap, err := c.source.FetchCurrentState(fetchCtx)
	if err == nil {
		return snap, nil
	}

	if apperrors.IsAuthError(err) {
		c.exporter.CollectErrors.WithLabelValues(ReasonAuthFailed).Inc()
		slog.Error("access point rejected credentials, re-authenticating", "error", err)

		reauthCtx, cancelReauth := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancelReauth()
		if reauthErr := c.source.Reauthenticate(reauthCtx); reauthErr != nil {
			slog.Error("re-authentication failed", "error", reauthErr)
			return nil, err
		}

		retryCtx, cancelRetry := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancelRetry()
		return c.source.FetchCurrentState(retryCtx)
	}

	c.exporter.CollectErrors.WithLabelValues(ReasonFetchFailed).Inc()
	return nil, err
}

// LastSuccess returns the completion time of the last successful cycle.
func (c *Collector) LastSuccess() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError returns the error of the most recent failed cycle, or nil if
// the last cycle succeeded.
func (c *Collector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Interval returns the configured collection interval.
func (c *Collector) Interval() time.Duration {
	return c.interval
}

func (c *Collector) setLastSuccess(t time.Time) {
	c.mu.Lock()
	c.lastSuccess = t
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Collector) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
