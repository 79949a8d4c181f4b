// Package metrics provides the core collection functionality of the
// exporter: the metric registry, the snapshot adapter and the collector
// loop that periodically publishes HomematicIP device state as Prometheus
// gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/auhlig/homematicip-exporter/internal/types"
	"github.com/auhlig/homematicip-exporter/pkg/device"
)

// Descriptor describes one exported gauge: its name, help text and fixed
// ordered label schema. Descriptors are immutable once registered.
type Descriptor struct {
	Name   types.MetricName
	Help   string
	Labels []string
}

// deviceLabels is the label schema shared by all device metrics.
var deviceLabels = []string{"device_id", "device_label", "room"}

// InfoDescriptor describes the installation info metric.
var InfoDescriptor = Descriptor{
	Name:   "homematicip_info",
	Help:   "HomematicIP installation info (value is always 1)",
	Labels: []string{"api_version"},
}

// catalog holds the stable metric contract of the exporter. Help strings
// document the unit conventions; both are load-bearing for dashboards and
// must not change between versions.
var catalog = map[types.MetricName]Descriptor{
	device.MetricTemperatureActual: {
		Name:   device.MetricTemperatureActual,
		Help:   "Actual temperature in degrees Celsius",
		Labels: deviceLabels,
	},
	device.MetricTemperatureSetpoint: {
		Name:   device.MetricTemperatureSetpoint,
		Help:   "Set point temperature in degrees Celsius",
		Labels: deviceLabels,
	},
	device.MetricHumidityActual: {
		Name:   device.MetricHumidityActual,
		Help:   "Actual relative humidity in percent (0-100)",
		Labels: deviceLabels,
	},
	device.MetricValvePosition: {
		Name:   device.MetricValvePosition,
		Help:   "Valve position in percent open (0-100)",
		Labels: deviceLabels,
	},
	device.MetricContactState: {
		Name:   device.MetricContactState,
		Help:   "Window/door contact state (0=closed, 1=open, 2=tilted)",
		Labels: deviceLabels,
	},
	device.MetricShutterLevel: {
		Name:   device.MetricShutterLevel,
		Help:   "Shutter level in percent closed (0-100)",
		Labels: deviceLabels,
	},
	device.MetricSwitchState: {
		Name:   device.MetricSwitchState,
		Help:   "Switch state (1=on, 0=off)",
		Labels: deviceLabels,
	},
	device.MetricPowerConsumption: {
		Name:   device.MetricPowerConsumption,
		Help:   "Current power consumption in watts",
		Labels: deviceLabels,
	},
	device.MetricEnergyCounter: {
		Name:   device.MetricEnergyCounter,
		Help:   "Accumulated energy counter in kilowatt hours",
		Labels: deviceLabels,
	},
	device.MetricBatteryLow: {
		Name:   device.MetricBatteryLow,
		Help:   "Battery state (1=low, 0=ok)",
		Labels: deviceLabels,
	},
	device.MetricUnreachable: {
		Name:   device.MetricUnreachable,
		Help:   "Device reachability (1=unreachable, 0=reachable)",
		Labels: deviceLabels,
	},
	device.MetricRSSI: {
		Name:   device.MetricRSSI,
		Help:   "Received signal strength of the device in dBm",
		Labels: deviceLabels,
	},
	device.MetricOperationLock: {
		Name:   device.MetricOperationLock,
		Help:   "Operation lock state (1=locked, 0=unlocked)",
		Labels: deviceLabels,
	},
}

// DescriptorFor returns the catalog descriptor for a metric name.
func DescriptorFor(name types.MetricName) (Descriptor, bool) {
	desc, ok := catalog[name]
	return desc, ok
}

// ExporterMetrics are the exporter-about-itself metrics. They live on the
// same registry as the device metrics so one scrape shows both.
type ExporterMetrics struct {
	CollectDuration prometheus.Histogram
	CollectErrors   *prometheus.CounterVec
	LastCollectTime prometheus.Gauge
	DeviceCount     prometheus.Gauge
	SkippedObjects  *prometheus.CounterVec
	EvictedDevices  prometheus.Counter
	WebsocketEvents *prometheus.CounterVec
}

// Collect error reasons used with ExporterMetrics.CollectErrors.
const (
	ReasonFetchFailed    = "fetch_failed"
	ReasonAuthFailed     = "auth_failed"
	ReasonSchemaConflict = "schema_conflict"
)

// Skip reasons used with ExporterMetrics.SkippedObjects.
const (
	SkipUnknownType = "unknown_type"
	SkipMalformed   = "malformed"
)

// NewExporterMetrics registers the exporter self-metrics on the given
// registerer.
func NewExporterMetrics(reg prometheus.Registerer) *ExporterMetrics {
	factory := promauto.With(reg)

	return &ExporterMetrics{
		CollectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "homematicip_exporter",
			Name:      "collect_duration_seconds",
			Help:      "Time spent on one collection cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		CollectErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homematicip_exporter",
			Name:      "collect_errors_total",
			Help:      "Collection errors by reason",
		}, []string{"reason"}),
		LastCollectTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "homematicip_exporter",
			Name:      "last_collect_timestamp_seconds",
			Help:      "Unix timestamp of the last successful collection cycle",
		}),
		DeviceCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "homematicip_exporter",
			Name:      "device_count",
			Help:      "Number of devices in the last snapshot",
		}),
		SkippedObjects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homematicip_exporter",
			Name:      "skipped_objects_total",
			Help:      "Snapshot objects skipped during adaptation by reason",
		}, []string{"reason"}),
		EvictedDevices: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "homematicip_exporter",
			Name:      "evicted_devices_total",
			Help:      "Devices whose metrics were evicted after missed cycles",
		}),
		WebsocketEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homematicip_exporter",
			Name:      "websocket_events_total",
			Help:      "Push events received on the websocket channel by type",
		}, []string{"type"}),
	}
}
