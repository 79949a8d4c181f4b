package metrics

import (
	"testing"
)

func present(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestTrackerEvictsAfterMissedCycles(t *testing.T) {
	tracker := NewDeviceTracker(2)

	if evicted := tracker.Observe(present("a", "b")); len(evicted) != 0 {
		t.Errorf("Expected no evictions on first observation, got %v", evicted)
	}

	// First missed cycle for "b".
	if evicted := tracker.Observe(present("a")); len(evicted) != 0 {
		t.Errorf("Expected no evictions after one missed cycle, got %v", evicted)
	}

	// Second missed cycle reaches the threshold.
	evicted := tracker.Observe(present("a"))
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("Expected [b] evicted after two missed cycles, got %v", evicted)
	}

	if tracker.Known() != 1 {
		t.Errorf("Expected 1 tracked device, got %d", tracker.Known())
	}
}

func TestTrackerReappearanceResetsCounter(t *testing.T) {
	tracker := NewDeviceTracker(2)

	tracker.Observe(present("a"))
	tracker.Observe(present())    // miss 1
	tracker.Observe(present("a")) // device is back

	if evicted := tracker.Observe(present()); len(evicted) != 0 {
		t.Errorf("Expected reset counter to prevent eviction, got %v", evicted)
	}
}

func TestTrackerEvictionDisabled(t *testing.T) {
	tracker := NewDeviceTracker(0)

	tracker.Observe(present("a"))
	for i := 0; i < 100; i++ {
		if evicted := tracker.Observe(present()); len(evicted) != 0 {
			t.Fatalf("Expected no evictions with eviction disabled, got %v", evicted)
		}
	}

	if tracker.Known() != 1 {
		t.Errorf("Expected device to stay tracked forever, got %d", tracker.Known())
	}
}

func TestTrackerEvictedDeviceStartsFresh(t *testing.T) {
	tracker := NewDeviceTracker(1)

	tracker.Observe(present("a"))
	if evicted := tracker.Observe(present()); len(evicted) != 1 {
		t.Fatalf("Expected eviction, got %v", evicted)
	}

	// Device returns after eviction and is tracked again.
	tracker.Observe(present("a"))
	if tracker.Known() != 1 {
		t.Errorf("Expected returning device to be tracked, got %d", tracker.Known())
	}
}
