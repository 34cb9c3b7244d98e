// Package metrics exposes Prometheus collectors for classification runs.
//
// Metrics:
//   - sitengine_detector_evaluations_total: detectors evaluated, by source and outcome
//   - sitengine_run_duration_seconds: engine run latency
//   - sitengine_run_matches: firing detectors per run
//   - sitengine_invalid_detectors_total: detectors rejected by the validity scan
//   - sitengine_result_cache_requests_total: result cache lookups, by outcome
//   - sitengine_events_published_total: classification events, by outcome
//   - sitengine_events_delivered_total: broker delivery reports, by topic, SIT and outcome
//   - sitengine_requests_total: surface requests, by surface and status
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

const namespace = "sitengine"

// Collector records classification metrics on its own registry.
// It implements classify.Observer.
type Collector struct {
	registry *prometheus.Registry

	evaluations     *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runMatches      prometheus.Histogram
	invalid         *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	requests        *prometheus.CounterVec
}

var _ classify.Observer = (*Collector)(nil)

// NewCollector creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detector_evaluations_total",
				Help:      "Total number of detector evaluations",
			},
			[]string{"source", "fired"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of classification runs",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		runMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_matches",
				Help:      "Number of firing detectors per classification run",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		invalid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_detectors_total",
				Help:      "Total number of detectors with patterns that failed to compile",
			},
			[]string{"source"},
		),

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_requests_total",
				Help:      "Total number of result cache lookups",
			},
			[]string{"result"},
		),

		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of classification events handed to the streamer",
			},
			[]string{"status"},
		),

		eventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_delivered_total",
				Help:      "Total number of classification events acknowledged or rejected by the broker",
			},
			[]string{"topic", "sensitive_type_id", "status"},
		),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of classification requests",
			},
			[]string{"surface", "status"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.evaluations,
		c.runDuration,
		c.runMatches,
		c.invalid,
		c.cacheRequests,
		c.eventsPublished,
		c.eventsDelivered,
		c.requests,
	)

	return c
}

// Registry returns the registry the collectors are registered on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// DetectorEvaluated counts one detector evaluation
func (c *Collector) DetectorEvaluated(source classify.Source, fired bool) {
	c.evaluations.WithLabelValues(string(source), strconv.FormatBool(fired)).Inc()
}

// RunCompleted records a finished engine run
func (c *Collector) RunCompleted(duration time.Duration, detectors, matches int) {
	c.runDuration.Observe(duration.Seconds())
	c.runMatches.Observe(float64(matches))
}

// InvalidDetectors counts detectors reported by the validity scan
func (c *Collector) InvalidDetectors(invalid []classify.InvalidDetector) {
	for _, d := range invalid {
		c.invalid.WithLabelValues(string(d.Source)).Inc()
	}
}

// CacheHit records a result cache hit
func (c *Collector) CacheHit() {
	c.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss records a result cache miss
func (c *Collector) CacheMiss() {
	c.cacheRequests.WithLabelValues("miss").Inc()
}

// CacheError records a failed result cache lookup or store
func (c *Collector) CacheError() {
	c.cacheRequests.WithLabelValues("error").Inc()
}

// EventsPublished records events handed to the streamer
func (c *Collector) EventsPublished(n int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.eventsPublished.WithLabelValues(status).Add(float64(n))
}

// EventDelivered records the broker's verdict on one event
func (c *Collector) EventDelivered(topic, sensitiveTypeID string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.eventsDelivered.WithLabelValues(topic, sensitiveTypeID, status).Inc()
}

// Request records one request on a surface (http, grpc, cli)
func (c *Collector) Request(surface, status string) {
	c.requests.WithLabelValues(surface, status).Inc()
}
