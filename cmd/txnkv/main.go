// Command txnkv is a thin demonstration front end for the transactional
// engine and replay coordinator. It is explicitly an external collaborator
// (spec.md §1): none of the core packages import it.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aleksdp/txnkv/internal/engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliConfig mirrors the teacher's server.Config/DefaultConfig shape, assembled
// from cobra flags rather than the stdlib flag package (spec.md AMBIENT STACK).
type cliConfig struct {
	maxAttempts   int
	retryBaseMS   int
	retryPerKeyMS int
	jitterMS      int
	logLevel      string
}

func defaultCLIConfig() cliConfig {
	retry := engine.DefaultRetryConfig()
	return cliConfig{
		maxAttempts:   100,
		retryBaseMS:   retry.BaseMS,
		retryPerKeyMS: retry.PerConflictMS,
		jitterMS:      0,
		logLevel:      "info",
	}
}

func newRootCmd() *cobra.Command {
	cfg := defaultCLIConfig()

	root := &cobra.Command{
		Use:   "txnkv",
		Short: "Demonstration front end for the optimistic transactional key-value engine",
	}

	root.PersistentFlags().IntVar(&cfg.maxAttempts, "max-attempts", cfg.maxAttempts, "replay coordinator retry budget")
	root.PersistentFlags().IntVar(&cfg.retryBaseMS, "retry-base-ms", cfg.retryBaseMS, "base retry wait, in milliseconds")
	root.PersistentFlags().IntVar(&cfg.retryPerKeyMS, "retry-per-conflict-ms", cfg.retryPerKeyMS, "additional retry wait per conflicting key, in milliseconds")
	root.PersistentFlags().IntVar(&cfg.jitterMS, "retry-jitter-ms", cfg.jitterMS, "random jitter added on top of the suggested retry wait")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "logrus level: debug, info, warn, error")

	root.AddCommand(newDemoCmd(&cfg))
	return root
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return logrus.NewEntry(log)
}
