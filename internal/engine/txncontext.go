package engine

import "github.com/aleksdp/txnkv/internal/clock"

// opKind distinguishes the two kinds of operation an op log entry records.
type opKind int

const (
	opRead opKind = iota
	opWrite
)

// op is one entry in a transaction's op log: a READ(key, ts) or a
// WRITE(key, value, ts) per spec.md §3.
type op[K comparable, V any] struct {
	kind  opKind
	key   K
	value V // only meaningful when kind == opWrite
	tick  clock.Tick
}

// txnContext is the per-live-transaction state spec.md §3 describes: id,
// start tick, a private snapshot, and an ordered op log. It is mutated only
// by operations on its own id and is destroyed (dropped from the engine's
// indices) by commit, success or abort — the engine never retains a reference
// to a destroyed context (spec.md §3 lifecycle).
type txnContext[K comparable, V any] struct {
	id        int64
	startTick clock.Tick
	snapshot  map[K]ValueRecord[V]
	opLog     []op[K, V]
}

func newTxnContext[K comparable, V any](id int64, startTick clock.Tick, master map[K]ValueRecord[V]) *txnContext[K, V] {
	snapshot := make(map[K]ValueRecord[V], len(master))
	for k, v := range master {
		snapshot[k] = v // ValueRecord is a plain value type: this copies it
	}
	return &txnContext[K, V]{
		id:        id,
		startTick: startTick,
		snapshot:  snapshot,
	}
}
