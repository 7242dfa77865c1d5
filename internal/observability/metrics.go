package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "autosig"

// Metrics holds the prometheus collectors of the autosig service.
// nil *Metrics are safe to use, observations are then discarded.
type Metrics struct {
	registry *prometheus.Registry
	verdicts *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics returns Metrics registered on a private prometheus Registry.
// The Registry also exposes go runtime & process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_verdicts_total",
				Help:      "Token authentication verdicts by outcome.",
			},
			[]string{"verdict"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Processed API requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "API request processing time.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
	reg.MustRegister(
		m.verdicts,
		m.requests,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveVerdict counts one authentication verdict.
func (self *Metrics) ObserveVerdict(verdict string) {
	if nil == self {
		return
	}
	self.verdicts.WithLabelValues(verdict).Inc()
}

// ObserveRequest counts one API request that completed with the given status code.
func (self *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if nil == self {
		return
	}
	self.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	self.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Registry returns the prometheus Registry holding the collectors.
func (self *Metrics) Registry() *prometheus.Registry {
	if nil == self {
		return nil
	}
	return self.registry
}

// Handler returns an http.Handler that serves the collected metrics.
func (self *Metrics) Handler() http.Handler {
	if nil == self {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(self.registry, promhttp.HandlerOpts{Registry: self.registry})
}
