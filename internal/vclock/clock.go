// Package vclock implements vector clocks for tracking causality between
// edits made on different devices. Each device advances its own counter;
// comparing two clocks tells whether one edit happened before the other or
// whether they were made concurrently while offline.
package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// VectorClock maps a device ID to its edit counter. Missing devices count as 0.
type VectorClock map[string]int64

// Ordering is the causal relationship between two vector clocks.
type Ordering int

const (
	Before Ordering = iota
	After
	Concurrent
	Equal
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	}
	return "unknown"
}

// New creates an empty vector clock.
func New() VectorClock {
	return make(VectorClock)
}

// Increment advances the counter for the given device by one.
func (vc VectorClock) Increment(deviceID string) {
	vc[deviceID]++
}

// Get returns the counter for the given device, or 0 if absent.
func (vc VectorClock) Get(deviceID string) int64 {
	return vc[deviceID]
}

// Copy returns a deep copy. A nil clock copies to an empty one.
func (vc VectorClock) Copy() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Equal reports whether the two clocks have identical counters, treating
// missing devices as 0.
func (vc VectorClock) Equal(other VectorClock) bool {
	for k, v := range vc {
		if other[k] != v {
			return false
		}
	}
	for k, v := range other {
		if vc[k] != v {
			return false
		}
	}
	return true
}

// Compare returns the causal relationship of vc to other:
//   - Equal: all counters identical
//   - Before: every counter <= the other's and at least one strictly less
//   - After: the symmetric case
//   - Concurrent: neither clock dominates
func (vc VectorClock) Compare(other VectorClock) Ordering {
	if vc.Equal(other) {
		return Equal
	}

	devices := make(map[string]struct{}, len(vc)+len(other))
	for d := range vc {
		devices[d] = struct{}{}
	}
	for d := range other {
		devices[d] = struct{}{}
	}

	var less, greater bool
	for d := range devices {
		a, b := vc[d], other[d]
		if a < b {
			less = true
		} else if a > b {
			greater = true
		}
	}

	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

// Merge returns a new clock holding the pointwise maximum over the union of
// device keys. Neither input is modified.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Copy()
	for d, counter := range other {
		if out[d] < counter {
			out[d] = counter
		}
	}
	return out
}

// MergeAll folds a set of clocks into their pointwise maximum.
func MergeAll(clocks ...VectorClock) VectorClock {
	out := New()
	for _, c := range clocks {
		out = out.Merge(c)
	}
	return out
}

// String renders the clock with device keys sorted for deterministic output.
func (vc VectorClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, vc[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
