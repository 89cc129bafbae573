// Package metrics exposes in-process Prometheus counters and histograms
// for the hunt/search pipeline: files opened, documents evaluated,
// detections emitted, and per-file processing duration. Nothing in this
// package performs network I/O; registration only makes the metrics
// available to whatever exporter the embedding process wires up.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type triageMetrics struct {
	once sync.Once

	filesOpened   prometheus.Counter
	filesFailed   prometheus.Counter
	docsEvaluated prometheus.Counter
	docsSkipped   prometheus.Counter
	detections    prometheus.Counter

	fileDuration prometheus.Histogram
}

var m triageMetrics

func (m *triageMetrics) init() {
	m.once.Do(func() {
		m.filesOpened = prometheus.NewCounter(prometheus.CounterOpts{Name: "chainsaw_files_opened_total", Help: "Input files successfully opened"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "chainsaw_files_failed_total", Help: "Input files that failed to open or parse"})
		m.docsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{Name: "chainsaw_documents_evaluated_total", Help: "Documents evaluated against the hunt or search filter set"})
		m.docsSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "chainsaw_documents_skipped_total", Help: "Documents excluded by a time window before evaluation"})
		m.detections = prometheus.NewCounter(prometheus.CounterOpts{Name: "chainsaw_detections_total", Help: "Positive hunt matches emitted"})

		buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}
		m.fileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "chainsaw_file_duration_seconds", Help: "Wall time spent processing one input file", Buckets: buckets})

		prometheus.MustRegister(
			m.filesOpened, m.filesFailed, m.docsEvaluated, m.docsSkipped, m.detections, m.fileDuration,
		)
	})
}

func FileOpened()      { m.init(); m.filesOpened.Inc() }
func FileFailed()      { m.init(); m.filesFailed.Inc() }
func DocumentEvaluated() { m.init(); m.docsEvaluated.Inc() }
func DocumentSkipped()  { m.init(); m.docsSkipped.Inc() }
func DetectionEmitted() { m.init(); m.detections.Inc() }

// ObserveFileDuration records how long one file took to process, in seconds.
func ObserveFileDuration(seconds float64) {
	m.init()
	m.fileDuration.Observe(seconds)
}
