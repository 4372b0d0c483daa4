package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the ledger engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PositionsOpened    *prometheus.CounterVec
	PositionsClosed    *prometheus.CounterVec
	BalanceAdjustments *prometheus.CounterVec
	RequestsDecided    *prometheus.CounterVec
	PriceOverrides     *prometheus.CounterVec
	FeedFailures       prometheus.Counter
	WatcherDuration    prometheus.Histogram
	WatcherOpen        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PositionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_positions_opened_total",
			Help: "Positions opened, by symbol and direction.",
		}, []string{"symbol", "direction"}),
		PositionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_positions_closed_total",
			Help: "Positions closed, by close reason.",
		}, []string{"reason"}),
		BalanceAdjustments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_balance_adjustments_total",
			Help: "Balance adjustments, by outcome (credit, debit, clamped).",
		}, []string{"outcome"}),
		RequestsDecided: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_requests_decided_total",
			Help: "Deposit and withdrawal decisions, by kind and status.",
		}, []string{"kind", "status"}),
		PriceOverrides: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_price_override_reverts_total",
			Help: "Temporary price override checks, by result (reverted, kept).",
		}, []string{"result"}),
		FeedFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_price_feed_failures_total",
			Help: "Price feed refreshes that failed and fell back to last known prices.",
		}),
		WatcherDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_trigger_watcher_duration_seconds",
			Help:    "Duration of one trigger watcher pass.",
			Buckets: prometheus.DefBuckets,
		}),
		WatcherOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_open_positions",
			Help: "Open positions seen by the last trigger watcher pass.",
		}),
	}
}

// ObservePositionOpened records a newly opened position
func (m *Metrics) ObservePositionOpened(symbol, direction string) {
	if m == nil {
		return
	}
	m.PositionsOpened.WithLabelValues(symbol, direction).Inc()
}

// ObservePositionClosed records a close transition
func (m *Metrics) ObservePositionClosed(reason string) {
	if m == nil {
		return
	}
	m.PositionsClosed.WithLabelValues(reason).Inc()
}

// ObserveAdjustment records a balance adjustment outcome
func (m *Metrics) ObserveAdjustment(outcome string) {
	if m == nil {
		return
	}
	m.BalanceAdjustments.WithLabelValues(outcome).Inc()
}

// ObserveRequestDecided records a queue decision
func (m *Metrics) ObserveRequestDecided(kind, status string) {
	if m == nil {
		return
	}
	m.RequestsDecided.WithLabelValues(kind, status).Inc()
}

// ObserveOverrideCheck records the result of a temporary override check
func (m *Metrics) ObserveOverrideCheck(result string) {
	if m == nil {
		return
	}
	m.PriceOverrides.WithLabelValues(result).Inc()
}

// ObserveFeedFailure records a failed feed refresh
func (m *Metrics) ObserveFeedFailure() {
	if m == nil {
		return
	}
	m.FeedFailures.Inc()
}

// ObserveWatcherPass records one trigger watcher pass
func (m *Metrics) ObserveWatcherPass(seconds float64, open int) {
	if m == nil {
		return
	}
	m.WatcherDuration.Observe(seconds)
	m.WatcherOpen.Set(float64(open))
}
