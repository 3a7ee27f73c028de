// Package metrics exposes judge measurements to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"judgebox/internal/judge/catalog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "judgebox"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	verdicts      *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	compiles      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	rateLimitHits prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Submissions finished, by language and status",
			},
			[]string{"language", "status"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Sandbox step duration",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"language", "phase"}, // phase: compile, run
		),
		compiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Compile steps, by language and outcome",
			},
			[]string{"language", "outcome"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_rejected_total",
				Help:      "Submissions refused at admission",
			},
			[]string{"reason"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		rateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// Registry is the gatherer behind /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackPool exports live worker pool gauges.
func (m *Metrics) TrackPool(queued, running func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Submissions waiting for a worker",
	}, func() float64 { return float64(queued()) })
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Workers currently judging",
	}, func() float64 { return float64(running()) })
}

// TrackBoxes exports the number of checked out sandbox boxes.
func (m *Metrics) TrackBoxes(inUse func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "boxes_in_use",
		Help:      "Isolate boxes checked out",
	}, func() float64 { return float64(inUse()) })
}

func (m *Metrics) ObserveCompile(language string, elapsed time.Duration, ok bool) {
	m.phaseDuration.WithLabelValues(language, "compile").Observe(elapsed.Seconds())
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.compiles.WithLabelValues(language, outcome).Inc()
}

func (m *Metrics) ObserveRun(language string, elapsed time.Duration) {
	m.phaseDuration.WithLabelValues(language, "run").Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveVerdict(language string, status catalog.Status) {
	m.verdicts.WithLabelValues(language, status.Description).Inc()
}

func (m *Metrics) ObserveRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited() {
	m.rateLimitHits.Inc()
}
