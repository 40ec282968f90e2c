package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trend-core/pkg/exchanges/common"
	"trend-core/pkg/exchanges/kraken"
)

const namespace = "trend_core"

// Metrics holds the Prometheus collectors of the bot. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	lockouts    *prometheus.CounterVec
	signals     *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	orders      *prometheus.CounterVec
	errors      *prometheus.CounterVec
	liquidation *prometheus.CounterVec

	cycleDuration prometheus.Histogram

	balance       prometheus.Gauge
	drawdown      prometheus.Gauge
	dailyPnL      prometheus.Gauge
	openPositions prometheus.Gauge
	lifecycle     *prometheus.GaugeVec
	heartbeat     prometheus.Gauge
}

var _ kraken.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exchange_requests_total",
			Help: "Exchange REST requests by path and outcome.",
		}, []string{"path", "outcome"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exchange_lockouts_total",
			Help: "Private request lockouts by reason.",
		}, []string{"reason"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Trading signals generated.",
		}, []string{"symbol", "direction"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Stochastic RSI alerts raised.",
		}, []string{"symbol", "type"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total",
			Help: "Orders submitted by outcome.",
		}, []string{"symbol", "side", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors by control cycle stage.",
		}, []string{"stage"}),
		liquidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "liquidation_orders_total",
			Help: "Emergency liquidation orders by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Duration of one control cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "balance",
			Help: "Latest quote currency balance.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "drawdown_ratio",
			Help: "Current drawdown from the initial balance.",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_pnl_ratio",
			Help: "PnL since the start of the UTC day as a fraction.",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions",
			Help: "Positions tracked by the controller.",
		}),
		lifecycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lifecycle_state",
			Help: "1 for the current controller state.",
		}, []string{"state"}),
		heartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "heartbeat_timestamp_seconds",
			Help: "Unix time of the last loop heartbeat.",
		}),
	}
	reg.MustRegister(
		m.requests, m.lockouts, m.signals, m.alerts, m.orders, m.errors, m.liquidation,
		m.cycleDuration, m.balance, m.drawdown, m.dailyPnL, m.openPositions, m.lifecycle, m.heartbeat,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest counts one exchange request.
func (m *Metrics) ObserveRequest(path string, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, outcome(err)).Inc()
}

// ObserveLockout counts a client lockout.
func (m *Metrics) ObserveLockout(reason string) {
	if m == nil {
		return
	}
	m.lockouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) Signal(symbol, direction string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(symbol, direction).Inc()
}

func (m *Metrics) Alert(symbol, kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) Order(symbol string, side common.Side, err error) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(symbol, string(side), outcome(err)).Inc()
}

func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Liquidation(err error) {
	if m == nil {
		return
	}
	m.liquidation.WithLabelValues(outcome(err)).Inc()
}

// ObserveCycle records the duration of one control cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

// SetRisk publishes the balance-derived risk picture.
func (m *Metrics) SetRisk(balance, drawdown, dailyPnL float64) {
	if m == nil {
		return
	}
	m.balance.Set(balance)
	m.drawdown.Set(drawdown)
	m.dailyPnL.Set(dailyPnL)
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(n))
}

// SetLifecycle marks state as the only active lifecycle state out of all.
func (m *Metrics) SetLifecycle(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.lifecycle.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetHeartbeat(t time.Time) {
	if m == nil {
		return
	}
	m.heartbeat.Set(float64(t.UnixNano()) / 1e9)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrLockedOut):
		return "locked_out"
	case errors.Is(err, kraken.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, kraken.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, kraken.ErrInvalidNonce):
		return "invalid_nonce"
	default:
		return "error"
	}
}
