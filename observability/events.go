package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vaultchain/core/events"
)

type eventMetrics struct {
	emitted       *prometheus.CounterVec
	payoutUnits   prometheus.Counter
	cacheFailures prometheus.Counter
	liquidations  *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry tracking emitted chain events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted events segmented by event type.",
			}, []string{"type"}),
			payoutUnits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "payout_collateral_units_total",
				Help:      "Cumulative collateral units moved by executed payouts.",
			}),
			cacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "cache_update_failures_total",
				Help:      "Count of swallowed view-cache push failures.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "liquidations_total",
				Help:      "Count of coordinated liquidations segmented by trigger.",
			}, []string{"trigger"}),
		}
		prometheus.MustRegister(
			eventRegistry.emitted,
			eventRegistry.payoutUnits,
			eventRegistry.cacheFailures,
			eventRegistry.liquidations,
		)
	})
	return eventRegistry
}

// Record counts one emitted event and updates the type-specific collectors.
func (m *eventMetrics) Record(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.SettlementPayoutExecuted:
		m.payoutUnits.Add(bigToFloat(e.CollateralAmount))
	case events.SettlementCacheUpdateFailed:
		m.cacheFailures.Inc()
	case events.SettlementPositionLiquidated:
		m.liquidations.WithLabelValues(liquidationTrigger(e)).Inc()
	}
}

func liquidationTrigger(e events.SettlementPositionLiquidated) string {
	switch {
	case e.Overdue && e.RiskTriggered:
		return "both"
	case e.Overdue:
		return "overdue"
	case e.RiskTriggered:
		return "risk"
	}
	return "unknown"
}

// MeterEmitter counts every event before forwarding it to the wrapped sink.
// A nil sink makes it a pure counter.
type MeterEmitter struct {
	next events.Emitter
}

// NewMeterEmitter wraps sink with event metering.
func NewMeterEmitter(sink events.Emitter) *MeterEmitter {
	return &MeterEmitter{next: sink}
}

// Emit implements events.Emitter.
func (m *MeterEmitter) Emit(evt events.Event) {
	if m == nil {
		return
	}
	Events().Record(evt)
	if m.next != nil {
		m.next.Emit(evt)
	}
}
