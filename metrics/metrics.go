// Package metrics exposes the pipeline's counters over Prometheus. The
// listener is opt-in (-metrics flag); without it the counters still
// update, they just have no readers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"speakd/log"
)

type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionBytes    prometheus.Histogram
	Recording       prometheus.Gauge

	// Pipeline metrics
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksDropped   prometheus.Counter
	TasksPending   prometheus.Gauge

	// Transcription metrics
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	AudioDuration         prometheus.Histogram
	Corrections           prometheus.Counter

	registry *prometheus.Registry
}

// New creates the metric set on its own registry so repeated construction
// (tests, restarts) never trips duplicate registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_sessions_stopped_total",
			Help: "Total number of recording sessions stopped",
		}),
		SessionBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakd_session_bytes",
			Help:    "Audio bytes accumulated per session",
			Buckets: prometheus.ExponentialBuckets(32*1024, 4, 8),
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speakd_recording",
			Help: "Whether a recording session is active (0 or 1)",
		}),

		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_tasks_submitted_total",
			Help: "Total number of transcription tasks submitted",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_tasks_completed_total",
			Help: "Total number of transcription tasks completed",
		}),
		TasksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_tasks_dropped_total",
			Help: "Total number of tasks dropped because the queue was full",
		}),
		TasksPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speakd_tasks_pending",
			Help: "Tasks submitted but not yet completed",
		}),

		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_transcription_failures_total",
			Help: "Total number of failed transcription attempts",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakd_transcription_duration_seconds",
			Help:    "Wall-clock time spent in the transcription engine",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakd_audio_duration_seconds",
			Help:    "Audio length of transcribed sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Corrections: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakd_corrections_total",
			Help: "Total number of post-processing substitutions applied",
		}),
	}
}

// Serve exposes /metrics on addr. It blocks, so callers run it in a
// goroutine alongside the bridge.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	log.Infof("metrics listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
