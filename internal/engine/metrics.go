package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors a Store updates as it runs, plus
// plain atomic counters Stats() reads from directly — a prometheus.Counter
// exposes no cheap way to read its own value back, and Stats() is meant for
// in-process callers (tests, the demo CLI), not a scrape target. They are
// observability only — nothing in the engine ever reads them back to make a
// decision, mirroring the counters talent-plan-tinykv and
// cockroachdb-cockroach expose alongside their storage layers.
type metrics struct {
	commits  prometheus.Counter
	aborts   prometheus.Counter
	inFlight prometheus.Gauge

	commitsSeen atomic.Uint64
	abortsSeen  atomic.Uint64
}

// newMetrics builds a fresh, unregistered set of collectors. A Store never
// registers them against a global registry itself — that would panic on a
// second Store instance in the same process (as happens constantly in
// tests) — callers that want them exported call Store.Collectors() and
// register against a registry of their own choosing.
func newMetrics(namePrefix string) *metrics {
	return &metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namePrefix + "_commits_total",
			Help: "Number of transactions successfully committed.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namePrefix + "_aborts_total",
			Help: "Number of transactions aborted by the validation predicate.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namePrefix + "_in_flight",
			Help: "Number of transactions currently between begin and commit.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.commits, m.aborts, m.inFlight}
}

func (m *metrics) recordCommit() {
	m.commits.Inc()
	m.commitsSeen.Add(1)
}

func (m *metrics) recordAbort() {
	m.aborts.Inc()
	m.abortsSeen.Add(1)
}
