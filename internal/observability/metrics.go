// Package observability provides Prometheus metrics for the simulation.
package observability

import (
	"errors"
	"net/http"

	"glitchex/internal/anomaly"
	"glitchex/internal/game"
	"glitchex/internal/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector and implements game.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Market metrics
	Ticks         prometheus.Counter
	BalanceUnits  prometheus.Gauge
	Trades        *prometheus.CounterVec
	TradeRejected *prometheus.CounterVec

	// Anomaly metrics
	ActiveAnomalies prometheus.Gauge
	Spawns          *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	Purges          *prometheus.CounterVec

	// Lifecycle metrics
	GamesEnded *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry, along with the Go
// runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "glitchex"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "ticks_total",
			Help:      "Total number of market ticks applied",
		}),
		BalanceUnits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "balance_units",
			Help:      "Current cash balance",
		}),
		Trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "trades_total",
			Help:      "Executed trades by executed side and whether a control reversed them",
		}, []string{"side", "reversed"}),
		TradeRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "trades_rejected_total",
			Help:      "Rejected trades by reason",
		}, []string{"reason"}),

		ActiveAnomalies: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "active",
			Help:      "Number of active anomalies across all assets and slots",
		}),
		Spawns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "spawned_total",
			Help:      "Anomalies assigned by slot and severity",
		}, []string{"slot", "severity"}),
		SpawnFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "generation_failures_total",
			Help:      "Generation requests that failed or returned a mismatched descriptor",
		}),
		Purges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "purges_total",
			Help:      "Purge attempts by category and outcome",
		}, []string{"category", "outcome"}),

		GamesEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "ended_total",
			Help:      "Finished games by terminal reason",
		}, []string{"reason"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveTick(balanceMicros int64, active int) {
	m.Ticks.Inc()
	m.BalanceUnits.Set(market.MicrosToUnits(balanceMicros))
	m.ActiveAnomalies.Set(float64(active))
}

func (m *Metrics) ObserveTrade(side market.Side, reversed bool, err error) {
	if err != nil {
		m.TradeRejected.WithLabelValues(rejectReason(err)).Inc()
		return
	}
	r := "false"
	if reversed {
		r = "true"
	}
	m.Trades.WithLabelValues(string(side), r).Inc()
}

func (m *Metrics) ObserveSpawn(slot anomaly.Slot, severity anomaly.Severity, err error) {
	if err != nil {
		m.SpawnFailures.Inc()
		return
	}
	m.Spawns.WithLabelValues(string(slot), severity.String()).Inc()
	m.ActiveAnomalies.Inc()
}

func (m *Metrics) ObservePurge(category anomaly.Category, ok bool) {
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	m.Purges.WithLabelValues(string(category), outcome).Inc()
}

func (m *Metrics) ObserveGameOver(reason game.Reason) {
	m.GamesEnded.WithLabelValues(string(reason)).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, market.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, market.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, market.ErrInvalidQuantity), errors.Is(err, market.ErrInvalidMultiplier):
		return "invalid"
	case errors.Is(err, market.ErrStopped):
		return "stopped"
	default:
		return "other"
	}
}
