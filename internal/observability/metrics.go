package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spc_outlook"

// Metrics holds the Prometheus counters, histograms, and gauges for the outlook pipeline.
type Metrics struct {
	// Upstream fetch metrics.
	FetchAttempts *prometheus.CounterVec // labels: variant={default,lyr,nolyr}, outcome={ok,rejected,no_data,error}
	FetchDuration prometheus.Histogram
	ArchiveCache  *prometheus.CounterVec // labels: result={hit,miss,store_error}

	// Extraction metrics.
	CollectionsExtracted *prometheus.CounterVec // labels: hazard
	Diagnostics          *prometheus.CounterVec // labels: kind={cycle_not_issued,hazard_unavailable}
	PipelineRuns         *prometheus.CounterVec // labels: outcome={ok,no_results,no_data,error}
	PipelineDuration     prometheus.Histogram

	// Poller metrics.
	CollectionsPublished prometheus.Counter
	PollerRunning        prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Upstream archive requests by geometry variant and outcome.",
		}, []string{"variant", "outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete archive fetch including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ArchiveCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_cache_total",
			Help:      "Archive store lookups by result.",
		}, []string{"result"}),
		CollectionsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_extracted_total",
			Help:      "Hazard collections with geometry extracted, by hazard.",
		}, []string{"hazard"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Recovered conditions recorded during runs, by kind.",
		}, []string{"kind"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a request from fetch to assembled result set.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CollectionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_published_total",
			Help:      "Hazard collections written to the outlook topic.",
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 when the poller is active, 0 when shut down.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.ArchiveCache,
		m.CollectionsExtracted,
		m.Diagnostics,
		m.PipelineRuns,
		m.PipelineDuration,
		m.CollectionsPublished,
		m.PollerRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
