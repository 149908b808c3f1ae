package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks order consumption, cascade and alert activity.
type EngineMetrics struct {
	orders           *prometheus.CounterVec
	commitDuration   prometheus.Histogram
	compensations    *prometheus.CounterVec
	menuFlips        *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	reactionFailures *prometheus.CounterVec
	ledgerDrift      prometheus.Gauge
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_orders_total",
		Help: "Order submissions by outcome.",
	}, []string{"outcome"})
	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_commit_duration_seconds",
		Help:    "Duration of the stock commit phase in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_compensations_total",
		Help: "Saga compensations of already decremented ingredients.",
	}, []string{"result"})
	menuFlips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "menu_item_status_flips_total",
		Help: "Menu item availability changes caused by inventory.",
	}, []string{"to"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_total",
		Help: "Stock alerts raised and resolved.",
	}, []string{"action", "type"})
	reactionFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reaction_failures_total",
		Help: "Best-effort cascade and alert failures after commit.",
	}, []string{"stage"})
	ledgerDrift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stock_ledger_drift_ingredients",
		Help: "Ingredients whose stock does not reconcile with the consumption ledger.",
	})
	reg.MustRegister(orders, commitDuration, compensations, menuFlips, alerts, reactionFailures, ledgerDrift)
	return &EngineMetrics{
		orders:           orders,
		commitDuration:   commitDuration,
		compensations:    compensations,
		menuFlips:        menuFlips,
		alerts:           alerts,
		reactionFailures: reactionFailures,
		ledgerDrift:      ledgerDrift,
	}
}

// IncOrder counts an order submission outcome (committed, replayed or an error code).
func (m *EngineMetrics) IncOrder(outcome string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) ObserveCommit(duration time.Duration) {
	if m == nil || m.commitDuration == nil {
		return
	}
	m.commitDuration.Observe(duration.Seconds())
}

func (m *EngineMetrics) IncCompensation(result string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *EngineMetrics) IncMenuFlip(to string) {
	if m == nil || m.menuFlips == nil {
		return
	}
	m.menuFlips.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *EngineMetrics) IncAlert(action, alertType string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(action), normalizeLabel(alertType)).Inc()
}

func (m *EngineMetrics) IncReactionFailure(stage string) {
	if m == nil || m.reactionFailures == nil {
		return
	}
	m.reactionFailures.WithLabelValues(normalizeLabel(stage)).Inc()
}

// SetLedgerDrift records how many ingredients failed the last reconciliation.
func (m *EngineMetrics) SetLedgerDrift(count int) {
	if m == nil || m.ledgerDrift == nil {
		return
	}
	m.ledgerDrift.Set(float64(count))
}
