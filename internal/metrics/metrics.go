// Package metrics exposes Prometheus instrumentation for the transcription
// pipeline, served on /metrics in serve mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal counts processed chunks by stage and outcome.
	// Labels: stage (extract/transcribe/merge), status (success/error).
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diarize_chunks_total",
			Help: "Total number of audio chunks processed by stage",
		},
		[]string{"stage", "status"},
	)

	// RetriesTotal counts transcription retry attempts.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diarize_transcription_retries_total",
			Help: "Total number of transcription retry attempts",
		},
	)

	// RunsTotal counts pipeline runs by final status (success/partial/error).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diarize_runs_total",
			Help: "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	// StageDuration observes per-stage processing time in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diarize_stage_duration_seconds",
			Help:    "Processing duration in seconds by stage",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
)

// RecordChunk records one chunk passing a stage.
func RecordChunk(stage string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ChunksTotal.WithLabelValues(stage, status).Inc()
}

// RecordRetry records one transcription retry attempt.
func RecordRetry() {
	RetriesTotal.Inc()
}

// RecordRun records a finished run.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long one stage took.
func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}
