package metrics

import (
	"sync"
)

// DeviceTracker tracks which devices appeared in recent snapshots and
// decides when an absent device's metrics should be evicted. A device is
// evicted after evictAfter consecutive cycles without an observation;
// evictAfter of zero disables eviction, retaining stale values forever.
type DeviceTracker struct {
	mu         sync.Mutex
	missed     map[string]int
	evictAfter int
}

// NewDeviceTracker creates a tracker with the given eviction threshold.
func NewDeviceTracker(evictAfter int) *DeviceTracker {
	return &DeviceTracker{
		missed:     make(map[string]int),
		evictAfter: evictAfter,
	}
}

// Observe records the set of device ids present in the latest snapshot and
// returns the ids whose metrics are now due for eviction. Returned ids are
// forgotten; they start fresh if the device ever reappears.
func (t *DeviceTracker) Observe(present map[string]struct{}) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range present {
		t.missed[id] = 0
	}

	var evicted []string
	for id, misses := range t.missed {
		if _, ok := present[id]; ok {
			continue
		}
		misses++
		if t.evictAfter > 0 && misses >= t.evictAfter {
			evicted = append(evicted, id)
			delete(t.missed, id)
			continue
		}
		t.missed[id] = misses
	}

	return evicted
}

// Known returns the number of devices currently tracked.
func (t *DeviceTracker) Known() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.missed)
}
