package event

import "sync/atomic"

// ID is a monotonically increasing, per-session event identifier. Global
// order matches causal order within a single task (spec.md §3, §8).
type ID uint64

// Allocator hands out strictly increasing IDs. The zero value starts at 1
// (0 is reserved as "no parent event").
type Allocator struct {
	next uint64
}

// Next returns the next ID in the sequence.
func (a *Allocator) Next() ID {
	return ID(atomic.AddUint64(&a.next, 1))
}
