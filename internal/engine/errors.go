package engine

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Callers should compare with errors.Is, not string
// matching, since most are returned wrapped with context via pkg/errors.
var (
	// ErrInvalidTransaction is returned by Begin when id is negative or
	// already live.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrNoSuchTransaction is returned by Read, Write, Commit, or Remove when
	// id does not reference a live transaction.
	ErrNoSuchTransaction = errors.New("no such transaction")

	// ErrInternalInvariant is returned when the engine observes state that
	// should be impossible (an unknown op kind, a live transaction missing
	// its snapshot). It indicates a bug in the engine, not caller misuse.
	ErrInternalInvariant = errors.New("internal invariant violated")

	// ErrNotImplemented is returned by Remove. spec.md §9 leaves remove's
	// interaction with last_read/last_written as an open question the source
	// never answers consistently; the conservative branch is taken.
	ErrNotImplemented = errors.New("not implemented")
)

// RetryError is returned by Commit when the validation predicate finds a
// conflict. It is recoverable: the transaction has already been cleaned up by
// the time this error is returned, so a caller that ignores it leaks nothing.
type RetryError struct {
	// WaitMS is the suggested backoff before retrying, derived from
	// ConflictCount via the Store's RetryConfig coefficients.
	WaitMS int
	// ConflictCount is the number of keys in the transaction's op log that
	// collided with a commit at or after the transaction's start tick.
	ConflictCount int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry later: %d conflicting key(s), wait %dms", e.ConflictCount, e.WaitMS)
}

// Wait satisfies the replay coordinator's retrySignal interface.
func (e *RetryError) Wait() time.Duration {
	return time.Duration(e.WaitMS) * time.Millisecond
}

// invalidTransaction wraps ErrInvalidTransaction with the offending id.
func invalidTransaction(id int64, reason string) error {
	return errors.Wrapf(ErrInvalidTransaction, "id=%d: %s", id, reason)
}

// noSuchTransaction wraps ErrNoSuchTransaction with the offending id.
func noSuchTransaction(id int64) error {
	return errors.Wrapf(ErrNoSuchTransaction, "id=%d", id)
}

// internalInvariant wraps ErrInternalInvariant with a stack trace attached,
// so a bug report carries enough context to diagnose without reproducing.
func internalInvariant(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrInternalInvariant, format, args...))
}
