// Package engine implements the optimistic, timestamp-based transactional
// key-value store: the canonical engine described in spec.md §4.1. A single
// Store is the shared, authoritative master map plus the in-flight
// transaction index; every begin/read/write/commit call is arbitrated by it.
package engine

import (
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/aleksdp/txnkv/internal/clock"
)

// Store is the shared transactional key-value engine. The zero value is not
// usable; construct one with New. A Store is safe for concurrent use by many
// goroutines, each identifying itself by the transaction id it was given by
// Begin.
type Store[K comparable, V any] struct {
	mu     sync.Mutex
	master map[K]ValueRecord[V]
	byID   map[int64]*txnContext[K, V]

	clock clock.Source
	log   *logrus.Entry
	stats *metrics
	retry RetryConfig
}

// RetryConfig configures how a RetryError's WaitMS is derived from the
// number of conflicting keys a failed commit found (spec.md §6).
type RetryConfig struct {
	// BaseMS is the fixed component of the suggested backoff.
	BaseMS int
	// PerConflictMS is added once per conflicting key.
	PerConflictMS int
}

// DefaultRetryConfig matches spec.md §6's documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{BaseMS: 100, PerConflictMS: 50}
}

// Stats is a point-in-time snapshot of the engine's transaction counters.
type Stats struct {
	Commits  uint64
	Aborts   uint64
	InFlight int
}

// New constructs an empty Store. clockSrc supplies the strictly monotonic
// tick source spec.md §6 requires be injected; pass clock.Monotonic() unless
// a test needs to control ticks directly. log may be nil, in which case a
// discarding logger is used.
func New[K comparable, V any](clockSrc clock.Source, log *logrus.Entry) *Store[K, V] {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	return &Store[K, V]{
		master: make(map[K]ValueRecord[V]),
		byID:   make(map[int64]*txnContext[K, V]),
		clock:  clockSrc,
		log:    log.WithField("component", "engine"),
		stats:  newMetrics("txnkv_engine"),
		retry:  DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the coefficients used to size a future
// RetryError's WaitMS. Intended to be called once, right after New.
func (s *Store[K, V]) WithRetryConfig(cfg RetryConfig) *Store[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = cfg
	return s
}

// Collectors returns the Store's Prometheus collectors for a caller to
// register against a registry of its choosing.
func (s *Store[K, V]) Collectors() []prometheus.Collector {
	return s.stats.collectors()
}

// Begin registers a new live transaction with the given id, snapshotting the
// current master map. id must be non-negative and not already live.
func (s *Store[K, V]) Begin(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 {
		return invalidTransaction(id, "negative id")
	}
	if _, live := s.byID[id]; live {
		return invalidTransaction(id, "already live")
	}

	startTick := s.clock()
	ctx := newTxnContext[K, V](id, startTick, s.master)
	s.byID[id] = ctx
	s.stats.inFlight.Inc()
	s.log.WithFields(logrus.Fields{"id": id, "start_tick": startTick}).Debug("begin")
	return nil
}

// Read appends a READ op to id's op log and returns the value visible in its
// snapshot. If the snapshot has never seen key, a placeholder absent record
// is installed for later commit-time reconciliation and (zero value, false)
// is returned.
func (s *Store[K, V]) Read(key K, id int64) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, live := s.byID[id]
	if !live {
		var zero V
		return zero, false, noSuchTransaction(id)
	}

	tick := s.clock()
	ctx.opLog = append(ctx.opLog, op[K, V]{kind: opRead, key: key, tick: tick})

	rec, ok := ctx.snapshot[key]
	if !ok {
		placeholder := absentRecord[V]()
		placeholder.LastRead = tickPtr(tick)
		ctx.snapshot[key] = placeholder
		var zero V
		return zero, false, nil
	}
	return rec.Value, rec.HasValue, nil
}

// Write appends a WRITE op to id's op log and overwrites key's entry in its
// snapshot with value.
func (s *Store[K, V]) Write(key K, value V, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, live := s.byID[id]
	if !live {
		return noSuchTransaction(id)
	}

	tick := s.clock()
	ctx.opLog = append(ctx.opLog, op[K, V]{kind: opWrite, key: key, value: value, tick: tick})
	ctx.snapshot[key] = ValueRecord[V]{Value: value, HasValue: true}
	return nil
}

// Remove is reserved. spec.md §4.1 permits implementations to model it as a
// WRITE of the absence marker or reject outright; this engine takes the
// conservative branch because the source is inconsistent about remove's
// interaction with last_read/last_written (spec.md §9 Open Question). An id
// that is not live yields ErrNoSuchTransaction instead.
func (s *Store[K, V]) Remove(key K, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, live := s.byID[id]; !live {
		return noSuchTransaction(id)
	}
	return ErrNotImplemented
}

// NeedToRollBack reports whether id's transaction, as of the call, would be
// rolled back by Commit, and how many of its keys conflict. It does not
// mutate any state, so it is safe to call on a still-live transaction (see
// spec.md §8 Testable Property 4/6 and scenario S6).
func (s *Store[K, V]) NeedToRollBack(id int64) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, live := s.byID[id]
	if !live {
		return false, 0, noSuchTransaction(id)
	}
	conflicts := s.conflictingKeys(ctx)
	return len(conflicts) > 0, len(conflicts), nil
}

// conflictingKeys returns the set of keys in ctx's op log whose master record
// has been written at or after ctx's start tick — the validation predicate
// from spec.md §4.1, applied uniformly to reads and writes.
func (s *Store[K, V]) conflictingKeys(ctx *txnContext[K, V]) []K {
	var conflicts []K
	seen := make(map[K]struct{}, len(ctx.opLog))
	for _, entry := range ctx.opLog {
		if _, already := seen[entry.key]; already {
			continue
		}
		seen[entry.key] = struct{}{}

		rec, exists := s.master[entry.key]
		if !exists || rec.LastWritten == nil {
			continue
		}
		if *rec.LastWritten >= ctx.startTick {
			conflicts = append(conflicts, entry.key)
		}
	}
	return conflicts
}

// Commit validates id's op log against master and, if it passes, applies
// every write and read-timestamp update atomically before dropping the
// transaction from all indices. If validation fails, the transaction is
// dropped and a *RetryError is returned; no master mutation occurs either
// way except on success.
func (s *Store[K, V]) Commit(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, live := s.byID[id]
	if !live {
		return noSuchTransaction(id)
	}

	conflicts := s.conflictingKeys(ctx)
	if len(conflicts) > 0 {
		delete(s.byID, id)
		s.stats.recordAbort()
		s.stats.inFlight.Dec()
		s.log.WithFields(logrus.Fields{"id": id, "conflicts": len(conflicts)}).Warn("commit aborted, retry later")
		return &RetryError{
			ConflictCount: len(conflicts),
			WaitMS:        s.retry.BaseMS + s.retry.PerConflictMS*len(conflicts),
		}
	}

	commitTick := s.clock()
	for _, entry := range ctx.opLog {
		switch entry.kind {
		case opWrite:
			rec, exists := s.master[entry.key]
			if !exists {
				s.master[entry.key] = ValueRecord[V]{
					Value:       entry.value,
					HasValue:    true,
					LastWritten: tickPtr(commitTick),
				}
				continue
			}
			rec.Value = entry.value
			rec.HasValue = true
			rec.LastWritten = tickPtr(commitTick)
			s.master[entry.key] = rec
		case opRead:
			if rec, exists := s.master[entry.key]; exists {
				rec.LastRead = tickPtr(commitTick)
				s.master[entry.key] = rec
			} else if placeholder, ok := ctx.snapshot[entry.key]; ok {
				placeholder.LastRead = tickPtr(commitTick)
				s.master[entry.key] = placeholder
			} else {
				return internalInvariant("live transaction %d missing snapshot entry for key read in op log", id)
			}
		default:
			return internalInvariant("transaction %d: unknown op kind %v in op log", id, entry.kind)
		}
	}

	delete(s.byID, id)
	s.stats.recordCommit()
	s.stats.inFlight.Dec()
	s.log.WithFields(logrus.Fields{"id": id, "commit_tick": commitTick, "ops": len(ctx.opLog)}).Debug("commit")
	return nil
}

// Stats returns a point-in-time snapshot of the engine's counters.
func (s *Store[K, V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Commits:  s.stats.commitsSeen.Load(),
		Aborts:   s.stats.abortsSeen.Load(),
		InFlight: len(s.byID),
	}
}
