package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcilerMetrics tracks the off-chain reconciler's ingest and export
// activity.
type ReconcilerMetrics struct {
	ingested   *prometheus.CounterVec
	reconnects prometheus.Counter
	exportRuns *prometheus.CounterVec
	exportRows prometheus.Counter
	breaches   prometheus.Counter
}

var (
	reconcilerOnce    sync.Once
	reconcilerMetrics *ReconcilerMetrics
)

// Reconciler returns the lazily initialised reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	reconcilerOnce.Do(func() {
		reconcilerMetrics = &ReconcilerMetrics{
			ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconciler",
				Name:      "events_ingested_total",
				Help:      "Stream events processed by the reconciler, segmented by event type and outcome.",
			}, []string{"type", "outcome"}),
			reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconciler",
				Name:      "stream_reconnects_total",
				Help:      "Websocket reconnect attempts against the node event stream.",
			}),
			exportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconciler",
				Name:      "export_runs_total",
				Help:      "Reconciliation export runs segmented by outcome.",
			}, []string{"outcome"}),
			exportRows: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconciler",
				Name:      "export_rows_total",
				Help:      "Report rows written across all export runs.",
			}),
			breaches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconciler",
				Name:      "share_conservation_breaches_total",
				Help:      "Payout rows whose four shares did not sum to the seized collateral amount.",
			}),
		}
		prometheus.MustRegister(
			reconcilerMetrics.ingested,
			reconcilerMetrics.reconnects,
			reconcilerMetrics.exportRuns,
			reconcilerMetrics.exportRows,
			reconcilerMetrics.breaches,
		)
	})
	return reconcilerMetrics
}

// RecordIngest counts one processed stream event. Outcomes: inserted,
// duplicate, skipped, failed.
func (m *ReconcilerMetrics) RecordIngest(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.ingested.WithLabelValues(eventType, outcome).Inc()
}

// RecordReconnect counts a stream reconnect attempt.
func (m *ReconcilerMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// RecordExport counts one export run and its rows.
func (m *ReconcilerMetrics) RecordExport(rows, breaches int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.exportRuns.WithLabelValues(outcome).Inc()
	m.exportRows.Add(float64(rows))
	m.breaches.Add(float64(breaches))
}
