// Package metrics holds the Prometheus collectors of the monitoring loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorguard"

// Pipeline stages used as the "stage" label of FileFailures.
const (
	StageRead   = "read"
	StageClean  = "clean"
	StageScore  = "score"
	StageRender = "render"
	StageWrite  = "write"
)

// Metrics groups the collectors registered for one monitor.
type Metrics struct {
	// FilesProcessed counts files that went through the whole pipeline.
	FilesProcessed prometheus.Counter
	// FileFailures counts files that failed, by stage.
	FileFailures *prometheus.CounterVec
	// RenderFailures counts channel charts that could not be drawn.
	RenderFailures prometheus.Counter
	// AnomaliesDetected counts rows flagged anomalous.
	AnomaliesDetected prometheus.Counter
	// ProcessingDuration observes whole-file pipeline latency.
	ProcessingDuration prometheus.Histogram
	// RegisteredFiles is the size of the processed-file registry.
	RegisteredFiles prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total number of input files fully processed",
		}),
		FileFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_failures_total",
			Help:      "Total number of input files that failed, by pipeline stage",
		}, []string{"stage"}),
		RenderFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Total number of channel charts that failed to render",
		}),
		AnomaliesDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Total number of rows flagged anomalous",
		}),
		ProcessingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_seconds",
			Help:      "Time to process one input file in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		RegisteredFiles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_files",
			Help:      "Number of files recorded as processed in this run",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
