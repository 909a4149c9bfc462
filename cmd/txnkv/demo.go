package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aleksdp/txnkv/internal/clock"
	"github.com/aleksdp/txnkv/internal/engine"
	"github.com/aleksdp/txnkv/internal/idgen"
	"github.com/aleksdp/txnkv/internal/replay"
)

// newDemoCmd wires a cobra.Command that drives a live engine.Store through
// the concurrent-increment scenario from spec.md §8 via the replay
// coordinator, the way the teacher's cmd/mini-redis/main.go constructed and ran a server
// against flag-derived configuration.
func newDemoCmd(cfg *cliConfig) *cobra.Command {
	var workers int
	var delta int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run N concurrent incrementing transactions against a fresh store and report the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, cfg, workers, delta)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 20, "number of concurrent transactions to run")
	cmd.Flags().IntVar(&delta, "delta", 1, "amount each transaction adds to the shared key")

	return cmd
}

func runDemo(cmd *cobra.Command, cfg *cliConfig, workers, delta int) error {
	log := newLogger(cfg.logLevel)

	store := engine.New[string, int](clock.Monotonic(), log).
		WithRetryConfig(engine.RetryConfig{BaseMS: cfg.retryBaseMS, PerConflictMS: cfg.retryPerKeyMS})
	coordinator := replay.New(log)
	ids := idgen.Counter()

	seedID := ids()
	if err := store.Begin(seedID); err != nil {
		return err
	}
	if err := store.Write("counter", 0, seedID); err != nil {
		return err
	}
	if err := store.Commit(seedID); err != nil {
		return err
	}

	increment := func(ctx context.Context, args any, s any, attempt int) error {
		st := s.(*engine.Store[string, int])
		id := ids()
		if err := st.Begin(id); err != nil {
			return err
		}
		current, _, err := st.Read("counter", id)
		if err != nil {
			return err
		}
		if err := st.Write("counter", current+delta, id); err != nil {
			return err
		}
		return st.Commit(id)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			submitCfg := replay.Config{MaxAttempts: cfg.maxAttempts, JitterMS: cfg.jitterMS}
			if err := coordinator.Submit(cmd.Context(), increment, nil, store, submitCfg); err != nil {
				log.WithError(err).Error("increment gave up")
			}
		}()
	}
	wg.Wait()

	readID := ids()
	if err := store.Begin(readID); err != nil {
		return err
	}
	final, _, err := store.Read("counter", readID)
	if err != nil {
		return err
	}
	if err := store.Commit(readID); err != nil {
		return err
	}

	stats := store.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "counter=%d (expected %d) commits=%d aborts=%d\n",
		final, workers*delta, stats.Commits, stats.Aborts)
	return nil
}
