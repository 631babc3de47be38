package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics tracks the node's state-commit pipeline and pause posture.
type CoreMetrics struct {
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	reverts        prometheus.Counter
	pauseEngaged   *prometheus.GaugeVec
}

var (
	coreOnce     sync.Once
	coreRegistry *CoreMetrics
)

// Core returns the node-level metrics registry.
func Core() *CoreMetrics {
	coreOnce.Do(func() {
		coreRegistry = &CoreMetrics{
			commits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_state_commits_total",
				Help: "Count of state commits by outcome.",
			}, []string{"outcome"}),
			commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "vault_state_commit_duration_seconds",
				Help:    "Latency distribution of trie commits.",
				Buckets: prometheus.DefBuckets,
			}),
			reverts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_state_reverts_total",
				Help: "Count of mutating calls rolled back to their snapshot.",
			}),
			pauseEngaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vault_module_pause_engaged",
				Help: "Whether a module's pause flag is raised (1) or clear (0).",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			coreRegistry.commits,
			coreRegistry.commitDuration,
			coreRegistry.reverts,
			coreRegistry.pauseEngaged,
		)
	})
	return coreRegistry
}

// ObserveCommit records one commit attempt and its duration.
func (m *CoreMetrics) ObserveCommit(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(d.Seconds())
}

// RecordRevert counts a snapshot rollback.
func (m *CoreMetrics) RecordRevert() {
	if m == nil {
		return
	}
	m.reverts.Inc()
}

// SetPause mirrors a module's pause flag onto the gauge.
func (m *CoreMetrics) SetPause(module string, engaged bool) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	value := 0.0
	if engaged {
		value = 1.0
	}
	m.pauseEngaged.WithLabelValues(module).Set(value)
}
