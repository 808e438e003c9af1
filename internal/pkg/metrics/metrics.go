package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wallet_valuator"

// Metrics holds the valuation engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	oracleCalls    *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
	cooldownSkips  prometheus.Counter
	balanceFetches *prometheus.CounterVec
}

// New creates the collectors and registers them with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_requests_total",
			Help:      "Valuation requests by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "valuation_duration_seconds",
			Help:      "Wall time of a valuation request, cache hits included",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_cache_lookups_total",
			Help:      "Result cache lookups by result (hit, miss)",
		}, []string{"result"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Price oracle calls by kind (batch, single, native) and status",
		}, []string{"kind", "status"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Quality gate rejections by reason",
		}, []string{"reason"}),
		cooldownSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_skips_total",
			Help:      "Mints not sent to the oracle because of an active cooldown",
		}),
		balanceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_fetches_total",
			Help:      "Balance provider calls by status",
		}, []string{"status"}),
	}
	reg.MustRegister(m.requests, m.duration, m.cacheLookups, m.oracleCalls, m.gateRejections, m.cooldownSkips, m.balanceFetches)
	return m
}

// ObserveRequest records one finished valuation request.
func (m *Metrics) ObserveRequest(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(start).Seconds())
}

// CacheLookup records a result cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// OracleCall records one oracle call. status is "ok", "unavailable" or "timeout".
func (m *Metrics) OracleCall(kind, status string) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(kind, status).Inc()
}

// GateRejection records a quality gate rejection.
func (m *Metrics) GateRejection(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// CooldownSkips records n mints skipped because of cooldown.
func (m *Metrics) CooldownSkips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cooldownSkips.Add(float64(n))
}

// BalanceFetch records one balance provider call.
func (m *Metrics) BalanceFetch(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.balanceFetches.WithLabelValues("ok").Inc()
		return
	}
	m.balanceFetches.WithLabelValues("error").Inc()
}
