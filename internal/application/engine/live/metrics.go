package live

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const metricsNamespace = "wxbot"

// Metrics exports engine counters. Each engine owns its own registry so tests
// can build as many engines as they like.
type Metrics struct {
	Registry *prometheus.Registry

	passes       prometheus.Counter
	passItems    *prometheus.CounterVec
	executions   *prometheus.CounterVec
	quoteErrors  prometheus.Counter
	safeBets     prometheus.Gauge
	workers      prometheus.Gauge
	breakerState *prometheus.GaugeVec
}

// NewMetrics registers all engine collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "promotion_passes_total",
			Help:      "Completed promotion passes.",
		}),
		passItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "promotion_items_total",
			Help:      "Instruments processed by promotion passes, by outcome.",
		}, []string{"outcome"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Execution attempts, by audit outcome.",
		}, []string{"outcome"}),
		quoteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quote_errors_total",
			Help:      "Transient quote fetch failures in supervisor tasks.",
		}),
		safeBets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "safe_bets",
			Help:      "Size of the live SafeBet set.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "supervisor_tasks",
			Help:      "Running fetch-and-execute tasks.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_active",
			Help:      "1 when the named breaker is active.",
		}, []string{"name"}),
	}
	m.Registry.MustRegister(
		m.passes, m.passItems, m.executions, m.quoteErrors,
		m.safeBets, m.workers, m.breakerState,
	)
	return m
}

func (m *Metrics) observePass(r PassResult) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passItems.WithLabelValues(string(ItemScored)).Add(float64(r.Scored))
	m.passItems.WithLabelValues(string(ItemPromoted)).Add(float64(r.Promoted))
	m.passItems.WithLabelValues(string(ItemSkipped)).Add(float64(r.Skipped))
	m.passItems.WithLabelValues(string(ItemFailed)).Add(float64(r.Failed))
}

func (m *Metrics) observeExecution(outcome domain.AuditOutcome) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) observeQuoteError() {
	if m == nil {
		return
	}
	m.quoteErrors.Inc()
}

func (m *Metrics) setSafeBets(n int) {
	if m == nil {
		return
	}
	m.safeBets.Set(float64(n))
}

func (m *Metrics) setWorkers(n int) {
	if m == nil {
		return
	}
	m.workers.Set(float64(n))
}

func (m *Metrics) setBreaker(b domain.Breaker) {
	if m == nil {
		return
	}
	v := 0.0
	if b.Active {
		v = 1
	}
	m.breakerState.WithLabelValues(string(b.Name)).Set(v)
}
