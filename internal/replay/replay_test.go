package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksdp/txnkv/internal/clock"
	"github.com/aleksdp/txnkv/internal/engine"
	"github.com/aleksdp/txnkv/internal/idgen"
)

// alwaysRetryClosure always raises a retry signal, for testable property 8.
func alwaysRetryClosure(ctx context.Context, args any, store any, attempt int) error {
	return &engine.RetryError{ConflictCount: 1, WaitMS: 1}
}

// Property 8 — retry-budget exhaustion: GaveUpError after exactly
// max_attempts + 1 invocations.
func TestRetryBudgetExhaustion(t *testing.T) {
	c := New(nil)

	var invocations int
	counting := func(ctx context.Context, args any, store any, attempt int) error {
		invocations++
		return alwaysRetryClosure(ctx, args, store, attempt)
	}

	cfg := Config{MaxAttempts: 5}
	err := c.Submit(context.Background(), counting, nil, nil, cfg)

	var gaveUp *GaveUpError
	require.ErrorAs(t, err, &gaveUp)
	assert.Equal(t, 5, gaveUp.MaxAttempts)
	assert.Equal(t, 6, invocations) // initial attempt + 5 retries
}

// Property 7 — replay convergence: N concurrent closures each adding Δ to a
// key converge on initial + N*Δ.
func TestReplayConvergenceUnderConcurrency(t *testing.T) {
	store := engine.New[string, int](clock.Monotonic(), nil)
	ids := idgen.Counter()

	beginID := ids()
	require.NoError(t, store.Begin(beginID))
	require.NoError(t, store.Write("k", 0, beginID))
	require.NoError(t, store.Commit(beginID))

	const n = 40
	const delta = 3

	increment := func(ctx context.Context, args any, s any, attempt int) error {
		st := s.(*engine.Store[string, int])
		id := ids()
		if err := st.Begin(id); err != nil {
			return err
		}
		v, _, err := st.Read("k", id)
		if err != nil {
			return err
		}
		if err := st.Write("k", v+delta, id); err != nil {
			return err
		}
		return st.Commit(id)
	}

	coordinator := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coordinator.Submit(context.Background(), increment, nil, store, Config{MaxAttempts: 1000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	finalID := ids()
	require.NoError(t, store.Begin(finalID))
	final, _, err := store.Read("k", finalID)
	require.NoError(t, err)
	require.NoError(t, store.Commit(finalID))

	assert.Equal(t, n*delta, final)
}

func TestNonRetryableErrorPropagatesImmediately(t *testing.T) {
	c := New(nil)
	boom := assert.AnError

	calls := 0
	err := c.Submit(context.Background(), func(ctx context.Context, args any, store any, attempt int) error {
		calls++
		return boom
	}, nil, nil, Config{MaxAttempts: 10})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestSuccessAfterSomeRetriesReturnsNil(t *testing.T) {
	c := New(nil)
	calls := 0
	err := c.Submit(context.Background(), func(ctx context.Context, args any, store any, attempt int) error {
		calls++
		if calls < 3 {
			return &engine.RetryError{ConflictCount: 1, WaitMS: 1}
		}
		return nil
	}, nil, nil, Config{MaxAttempts: 10})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestOnRetryHookFiresOncePerRetry(t *testing.T) {
	c := New(nil)
	var attempts []int
	calls := 0
	err := c.Submit(context.Background(), func(ctx context.Context, args any, store any, attempt int) error {
		calls++
		if calls < 4 {
			return &engine.RetryError{ConflictCount: 1, WaitMS: 50}
		}
		return nil
	}, nil, nil, Config{
		MaxAttempts: 10,
		OnRetry: func(attempt int, wait time.Duration) {
			attempts = append(attempts, attempt)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestCancellationDuringSleepPropagates(t *testing.T) {
	c := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Submit(ctx, func(ctx context.Context, args any, store any, attempt int) error {
		return &engine.RetryError{ConflictCount: 1, WaitMS: 5000}
	}, nil, nil, Config{MaxAttempts: 10})

	assert.ErrorIs(t, err, context.Canceled)
}
