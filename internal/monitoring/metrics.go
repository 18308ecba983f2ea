// internal/monitoring/metrics.go
package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/extractstudio/internal/pipeline"
)

// MetricsConfig configures a Collector.
type MetricsConfig struct {
	Namespace string
	Subsystem string
	// EnableGoMetrics adds the Go runtime and process collectors.
	EnableGoMetrics bool
}

// Collector records pipeline activity as Prometheus metrics on its own
// registry. It implements pipeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	items         *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Gauge
	lastRun       prometheus.Gauge

	mu        sync.RWMutex
	runs      int
	lastError error
}

var _ pipeline.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics.
func NewCollector(config MetricsConfig) *Collector {
	if config.Namespace == "" {
		config.Namespace = "extractstudio"
	}
	if config.Subsystem == "" {
		config.Subsystem = "pipeline"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "fetches_total",
			Help:      "Total number of fetch attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	c.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	c.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	c.items = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "items",
			Help:      "Item counts of the last completed run by kind",
		},
		[]string{"kind"},
	)

	c.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of logged errors by kind",
		},
		[]string{"kind"},
	)

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)

	c.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the last completed run",
	})

	c.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})

	c.registry.MustRegister(
		c.fetchesTotal, c.fetchDuration, c.stageDuration, c.items,
		c.errorsTotal, c.runsTotal, c.runDuration, c.lastRun,
	)
	if config.EnableGoMetrics {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveFetch(source string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.fetchesTotal.WithLabelValues(source, outcome).Inc()
	c.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveRun publishes the counters of a finished run.
func (c *Collector) ObserveRun(m *pipeline.Metrics) {
	c.items.WithLabelValues("urls").Set(float64(m.TotalURLs))
	c.items.WithLabelValues("fetched").Set(float64(m.SuccessfulFetches))
	c.items.WithLabelValues("fetch_failed").Set(float64(m.FailedFetches))
	c.items.WithLabelValues("parsed").Set(float64(m.ParsedItems))
	c.items.WithLabelValues("normalized").Set(float64(m.NormalizedItems))
	c.items.WithLabelValues("duplicates").Set(float64(m.DuplicatesFiltered))
	c.items.WithLabelValues("quality_filtered").Set(float64(m.QualityFiltered))
	c.items.WithLabelValues("enriched").Set(float64(m.EnrichedItems))
	c.items.WithLabelValues("degraded").Set(float64(m.DegradedItems))

	for kind, n := range m.ErrorsByKind() {
		c.errorsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}

	status := "success"
	if m.Err() != nil {
		status = "failure"
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Set(m.Duration().Seconds())
	c.lastRun.Set(float64(m.EndTime.Unix()))

	c.mu.Lock()
	c.runs++
	c.lastError = m.Err()
	c.mu.Unlock()
}

// LastRun returns the number of observed runs and the error of the latest.
func (c *Collector) LastRun() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs, c.lastError
}
