// Package metrics defines the Prometheus collectors exported by keen-dns.
//
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the query tracker, the redirector and the proxy.
type Metrics struct {
	QueriesTracked    prometheus.Counter
	QueriesReplaced   prometheus.Counter
	CorrelationMisses *prometheus.CounterVec
	RecordsFlushed    *prometheus.CounterVec
	FlushFailures     prometheus.Counter
	FlushDuration     prometheus.Histogram
	RedirectMode      *prometheus.GaugeVec
	ProxyRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keendns_queries_tracked_total",
			Help: "Number of device queries registered by the query tracker",
		}),
		QueriesReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keendns_queries_replaced_total",
			Help: "Number of in-flight queries overwritten by a new query with the same transaction id",
		}),
		CorrelationMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keendns_correlation_misses_total",
			Help: "Events referencing a transaction id with no in-flight query",
		}, []string{"event"}),
		RecordsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keendns_records_flushed_total",
			Help: "Query records written to the store",
		}, []string{"op"}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keendns_flush_failures_total",
			Help: "Flush transactions that were rolled back",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keendns_flush_duration_seconds",
			Help:    "Duration of query store flush transactions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		RedirectMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keendns_redirect_mode",
			Help: "Current traffic redirection mode (1 for the active mode)",
		}, []string{"mode"}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keendns_proxy_requests_total",
			Help: "DNS requests handled by the local proxy",
		}, []string{"network", "source"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.QueriesTracked,
			m.QueriesReplaced,
			m.CorrelationMisses,
			m.RecordsFlushed,
			m.FlushFailures,
			m.FlushDuration,
			m.RedirectMode,
			m.ProxyRequests,
		)
	}

	return m
}

func (m *Metrics) TrackedQuery(replaced bool) {
	if m == nil {
		return
	}
	m.QueriesTracked.Inc()
	if replaced {
		m.QueriesReplaced.Inc()
	}
}

func (m *Metrics) CorrelationMiss(event string) {
	if m == nil {
		return
	}
	m.CorrelationMisses.WithLabelValues(event).Inc()
}

func (m *Metrics) Flushed(inserts, updates int, seconds float64) {
	if m == nil {
		return
	}
	m.RecordsFlushed.WithLabelValues("insert").Add(float64(inserts))
	m.RecordsFlushed.WithLabelValues("update").Add(float64(updates))
	m.FlushDuration.Observe(seconds)
}

func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}

// SetRedirectMode marks mode as the active one among all known modes.
func (m *Metrics) SetRedirectMode(mode string, known []string) {
	if m == nil {
		return
	}
	for _, k := range known {
		v := 0.0
		if k == mode {
			v = 1
		}
		m.RedirectMode.WithLabelValues(k).Set(v)
	}
}

func (m *Metrics) ProxyRequest(network, source string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(network, source).Inc()
}
