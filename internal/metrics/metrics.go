// Package metrics holds the Prometheus instruments for index runs, queries
// and answer generation.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codeknowl"

var (
	// indexRunsTotal counts finished index runs.
	//
	// Labels:
	//   - status: "succeeded" or "failed"
	indexRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Total number of finished index runs.",
		},
		[]string{"status"},
	)

	indexRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_run_duration_seconds",
			Help:      "Wall time of index runs in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
	)

	// extractedRecordsTotal counts records emitted by successful runs.
	//
	// Labels:
	//   - record: "files", "symbols" or "calls"
	extractedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_records_total",
			Help:      "Total records written to snapshots.",
		},
		[]string{"record"},
	)

	// filesSkippedTotal counts files dropped during extraction.
	//
	// Labels:
	//   - reason: "read" or "parse"
	filesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Total files skipped during extraction.",
		},
		[]string{"reason"},
	)

	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total queries answered, by query type.",
		},
		[]string{"type"},
	)

	// generatorRequestsTotal counts answer generator calls.
	//
	// Labels:
	//   - outcome: "success" or "error"
	generatorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_requests_total",
			Help:      "Total answer generator requests.",
		},
		[]string{"outcome"},
	)

	generatorLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_latency_seconds",
			Help:      "Latency of answer generator requests in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

// RecordIndexRun records a finished run.
func RecordIndexRun(status string, d time.Duration) {
	indexRunsTotal.WithLabelValues(status).Inc()
	indexRunDuration.Observe(d.Seconds())
}

// RecordExtracted adds the record counts of a published snapshot.
func RecordExtracted(files, symbols, calls int) {
	extractedRecordsTotal.WithLabelValues("files").Add(float64(files))
	extractedRecordsTotal.WithLabelValues("symbols").Add(float64(symbols))
	extractedRecordsTotal.WithLabelValues("calls").Add(float64(calls))
}

// RecordSkippedFile counts one file skipped for reason.
func RecordSkippedFile(reason string) {
	filesSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordQuery counts one query of queryType.
func RecordQuery(queryType string) {
	queriesTotal.WithLabelValues(queryType).Inc()
}

// RecordGenerator records one generator request.
func RecordGenerator(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	generatorRequestsTotal.WithLabelValues(outcome).Inc()
	generatorLatency.Observe(d.Seconds())
}

// WriteTextfile writes the default registry in the text exposition format
// for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
