// Package metrics defines a concurrently-accessible metrics collector.
//
// A *metrics.M value exports methods to track integer counters and maximum
// values. A metric has a caller-assigned string name that is not interpreted
// by the collector except to locate its stored value. Peers count their call
// and dispatch traffic here; a collector may be shared across peers.
package metrics

import "sync"

// Counter names recorded by peers. The collector itself does not interpret
// them; they are listed here so fleets aggregating over shared collectors
// agree on spelling.
const (
	CallsOut      = "rpc.calls.out"      // outbound requests sent
	CallsIn       = "rpc.calls.in"       // inbound requests dispatched
	EventsOut     = "rpc.events.out"     // outbound events sent
	EventsIn      = "rpc.events.in"      // inbound events delivered
	Timeouts      = "rpc.timeouts"       // pending requests expired
	RemoteErrors  = "rpc.errors.remote"  // error frames completing our calls
	DroppedFrames = "rpc.frames.dropped" // inbound frames discarded
	PendingMax    = "rpc.pending.max"    // high-water mark of pending calls
)

// An M collects counters and maximum value trackers.  A nil *M is valid, and
// discards all metrics. The methods of an *M are safe for concurrent use by
// multiple goroutines.
type M struct {
	mu      sync.Mutex
	counter map[string]int64
	maxVal  map[string]int64
}

// New creates a new, empty metrics collector.
func New() *M {
	return &M{
		counter: make(map[string]int64),
		maxVal:  make(map[string]int64),
	}
}

// Count adds n to the current value of the counter named, defining the counter
// if it does not already exist.
func (m *M) Count(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.counter[name] += n
	}
}

// SetMaxValue sets the maximum value metric named to the greater of n and its
// current value, defining the value if it does not already exist.
func (m *M) SetMaxValue(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if old, ok := m.maxVal[name]; !ok || n > old {
			m.maxVal[name] = n
		}
	}
}

// CountAndSetMax adds n to the current value of the counter named, and also
// updates a max value tracker with the same name in a single step.
func (m *M) CountAndSetMax(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if old, ok := m.maxVal[name]; !ok || n > old {
			m.maxVal[name] = n
		}
		m.counter[name] += n
	}
}

// Snapshot copies an atomic snapshot of the collected metrics into the non-nil
// fields of the provided snapshot value. Only the fields of snap that are not
// nil are snapshotted.
func (m *M) Snapshot(snap Snapshot) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c := snap.Counter; c != nil {
			for name, val := range m.counter {
				c[name] = val
			}
		}
		if v := snap.MaxValue; v != nil {
			for name, val := range m.maxVal {
				v[name] = val
			}
		}
	}
}

// A Snapshot represents a point-in-time snapshot of a metrics collector.  The
// fields of this type are filled in by the Snapshot method of *M.
type Snapshot struct {
	Counter  map[string]int64
	MaxValue map[string]int64
}
