package engine

import "github.com/aleksdp/txnkv/internal/clock"

// ValueRecord is the per-key unit of truth: a stored value plus the last-read
// and last-written ticks that the validation predicate consults. It is copied
// by value into snapshots and back into master; equality and identity are
// never relied on by the engine (spec.md §4.2).
type ValueRecord[V any] struct {
	// Value holds the stored payload. Only meaningful when HasValue is true.
	Value V
	// HasValue distinguishes a legitimately stored (possibly zero-valued) V
	// from the absence marker — a typed "no value," since V may not be a
	// nilable type.
	HasValue bool
	// LastWritten is the tick of the most recent committed write, or nil if
	// the key has never been written.
	LastWritten *clock.Tick
	// LastRead is the tick of the most recent committed read, or nil if the
	// key has never been read.
	LastRead *clock.Tick
}

// absentRecord returns the zero ValueRecord with HasValue false and both
// timestamps nil, matching spec.md §4.1's "absence marker" placeholder that
// read() installs in a transaction's snapshot for an unseen key.
func absentRecord[V any]() ValueRecord[V] {
	return ValueRecord[V]{}
}

func tickPtr(t clock.Tick) *clock.Tick {
	return &t
}
