// Package replay implements the server-side replay coordinator: it turns a
// retryable transactional closure into a commit-or-give-up outcome, per
// spec.md §4.4. The coordinator is agnostic to what the closure does with the
// store it is handed — it only reacts to the retry signal the closure raises.
package replay

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Closure is a retryable unit of work. store is passed through untouched —
// the coordinator never inspects it — and args carries whatever the caller's
// closure needs. The closure is responsible for allocating a fresh
// transaction id each attempt and for calling begin/.../commit itself
// (spec.md §4.4).
type Closure func(ctx context.Context, args any, store any, attempt int) error

// retrySignal is satisfied by an error that wants the coordinator to sleep
// and retry rather than propagate. engine.RetryError implements it via its
// Wait method.
type retrySignal interface {
	error
	Wait() time.Duration
}

// Config bounds and paces the retry loop (spec.md §6).
type Config struct {
	// MaxAttempts is the number of retries permitted after the first
	// attempt. Exceeding it raises *GaveUpError. Defaults to 100.
	MaxAttempts int
	// JitterMS adds up to this many milliseconds of random jitter on top of
	// the wait the retry signal requested, to reduce thundering herds across
	// many coordinators retrying the same key at once. Defaults to 0.
	JitterMS int
	// OnRetry, if set, is called after each retry signal is observed and
	// before the coordinator sleeps. Tests use this to assert retry counts;
	// the coordinator still sleeps the full wait afterwards.
	OnRetry func(attempt int, wait time.Duration)
}

// DefaultConfig matches spec.md §6's documented default.
func DefaultConfig() Config {
	return Config{MaxAttempts: 100}
}

// Coordinator runs Closures to completion, retrying on retrySignal errors.
type Coordinator struct {
	log     *logrus.Entry
	retries prometheus.Counter
	giveups prometheus.Counter
}

// New constructs a Coordinator. log may be nil.
func New(log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		log: log.WithField("component", "replay"),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txnkv_replay_retries_total",
			Help: "Number of retry signals observed by the replay coordinator.",
		}),
		giveups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txnkv_replay_giveups_total",
			Help: "Number of closures that exhausted their retry budget.",
		}),
	}
}

// Collectors returns the Coordinator's Prometheus collectors.
func (c *Coordinator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.retries, c.giveups}
}

// Submit invokes fn repeatedly against store until it returns nil, returns a
// non-retryable error, the attempt budget is exhausted (*GaveUpError), or ctx
// is cancelled while sleeping between attempts.
func (c *Coordinator) Submit(ctx context.Context, fn Closure, args any, store any, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	attempt := 0
	for {
		err := fn(ctx, args, store, attempt)
		if err == nil {
			return nil
		}

		var retry retrySignal
		if !errors.As(err, &retry) {
			return err
		}

		attempt++
		if attempt > cfg.MaxAttempts {
			c.giveups.Inc()
			c.log.WithField("max_attempts", cfg.MaxAttempts).Warn("gave up")
			return &GaveUpError{MaxAttempts: cfg.MaxAttempts}
		}

		c.retries.Inc()
		wait := retry.Wait()
		if cfg.JitterMS > 0 {
			wait += time.Duration(rand.Intn(cfg.JitterMS)) * time.Millisecond
		}
		c.log.WithFields(logrus.Fields{"attempt": attempt, "wait": wait}).Info("retrying")
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
