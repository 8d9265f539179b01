package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the detection pipeline.
type Metrics struct {
	QueriesConsumed prometheus.Counter
	ResultsProduced prometheus.Counter
	TransformErrors prometheus.Counter
	BuildErrors     *prometheus.CounterVec // labels: kind={fetch,schema,geometry,empty,other}
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Build metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss,shared}
	Detections   *prometheus.CounterVec // labels: outcome={kept,dropped}

	// FIRMS API metrics.
	FIRMSRequests     *prometheus.CounterVec   // labels: endpoint={csv,status}, outcome={success,error}
	FIRMSDuration     *prometheus.HistogramVec // labels: endpoint={csv,status}
	FIRMSTransactions prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewUnregisteredMetrics()

	prometheus.MustRegister(
		m.QueriesConsumed,
		m.ResultsProduced,
		m.TransformErrors,
		m.BuildErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.CacheLookups,
		m.Detections,
		m.FIRMSRequests,
		m.FIRMSDuration,
		m.FIRMSTransactions,
	)

	return m
}

// NewUnregisteredMetrics creates the pipeline metrics without registering
// them, for one-shot commands that never serve /metrics.
func NewUnregisteredMetrics() *Metrics {
	return &Metrics{
		QueriesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "queries_consumed_total",
			Help:      "Total query requests read from the source topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "results_produced_total",
			Help:      "Total detection results written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "transform_errors_total",
			Help:      "Query requests that did not produce a result.",
		}),
		BuildErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "build_errors_total",
			Help:      "Failed builds by error kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firms_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firms_etl",
			Name:      "batch_size",
			Help:      "Number of query requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firms_etl",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-build-load cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "detections_total",
			Help:      "Detections seen by the confidence filter, by outcome.",
		}, []string{"outcome"}),
		FIRMSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firms_etl",
			Name:      "firms_requests_total",
			Help:      "FIRMS API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FIRMSDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firms_etl",
			Name:      "firms_request_duration_seconds",
			Help:      "FIRMS API request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		FIRMSTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firms_etl",
			Name:      "firms_current_transactions",
			Help:      "Transactions used by the MAP_KEY in the current FIRMS interval.",
		}),
	}
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewUnregisteredMetrics()
}
