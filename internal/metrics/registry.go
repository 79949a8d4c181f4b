package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/auhlig/homematicip-exporter/internal/errors"
	"github.com/auhlig/homematicip-exporter/internal/types"
)

// Registry owns the set of exported metric descriptors and their current
// values. It wraps a private prometheus.Registry so exposition never
// depends on ambient global state; the same instance is handed to the
// collector (writer) and the HTTP server (reader). Updates and gathering
// are safe to run concurrently.
type Registry struct {
	prom *prometheus.Registry

	mu   sync.RWMutex
	vecs map[types.MetricName]vecEntry
}

type vecEntry struct {
	desc Descriptor
	vec  *prometheus.GaugeVec
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		prom: prometheus.NewRegistry(),
		vecs: make(map[types.MetricName]vecEntry),
	}
}

// Register registers a descriptor. Registration is idempotent; a second
// registration under the same name with a different label schema fails
// with a SchemaConflictError.
func (r *Registry) Register(desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(desc)
}

func (r *Registry) registerLocked(desc Descriptor) error {
	if existing, ok := r.vecs[desc.Name]; ok {
		if !labelsEqual(existing.desc.Labels, desc.Labels) {
			return apperrors.SchemaConflictError{
				Metric:      desc.Name.String(),
				Registered:  existing.desc.Labels,
				Conflicting: desc.Labels,
			}
		}
		return nil
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: desc.Name.String(),
		Help: desc.Help,
	}, desc.Labels)

	if err := r.prom.Register(vec); err != nil {
		return err
	}

	r.vecs[desc.Name] = vecEntry{desc: desc, vec: vec}
	return nil
}

// Update sets one cell of the value table, registering the descriptor
// lazily on first use. The label values must be given in the descriptor's
// label order.
func (r *Registry) Update(desc Descriptor, labelValues []string, value float64) error {
	if len(labelValues) != len(desc.Labels) {
		return apperrors.SchemaConflictError{
			Metric:      desc.Name.String(),
			Registered:  desc.Labels,
			Conflicting: labelValues,
		}
	}

	r.mu.Lock()
	if err := r.registerLocked(desc); err != nil {
		r.mu.Unlock()
		return err
	}
	entry := r.vecs[desc.Name]
	r.mu.Unlock()

	gauge, err := entry.vec.GetMetricWithLabelValues(labelValues...)
	if err != nil {
		return err
	}
	gauge.Set(value)
	return nil
}

// RemoveDevice deletes every series labelled with the given device id
// across all registered metrics and returns the number of series removed.
func (r *Registry) RemoveDevice(deviceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	removed := 0
	match := prometheus.Labels{"device_id": deviceID}
	for _, entry := range r.vecs {
		if !hasLabel(entry.desc.Labels, "device_id") {
			continue
		}
		removed += entry.vec.DeletePartialMatch(match)
	}
	return removed
}

// Gatherer returns the read-only exposition view of the registry. Gather
// is safe to call concurrently with Update; readers observe complete
// series, never a torn write.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Registerer exposes the underlying registerer so self-metrics can live on
// the same registry.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.prom
}

// Descriptors returns the currently registered descriptors.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.vecs))
	for _, entry := range r.vecs {
		out = append(out, entry.desc)
	}
	return out
}

func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}
