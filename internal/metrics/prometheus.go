package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the sound classifier.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decision metrics
	Verdicts          *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	PipelineErrors    *prometheus.CounterVec
	VerdictConfidence prometheus.Histogram
	GateScores        *prometheus.HistogramVec
	StageDuration     *prometheus.HistogramVec
	AudioBytes        prometheus.Histogram

	// Model metrics
	ModelRequests  prometheus.Counter
	ModelFailures  prometheus.Counter
	ModelDuration  prometheus.Histogram
	ModelAvailable prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sound_verdicts_total",
			Help: "Total number of verdicts by internal class label",
		}, []string{"class"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sound_rejections_total",
			Help: "Total number of clips reported unrecognized, by gate",
		}, []string{"gate"}),
		PipelineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sound_pipeline_errors_total",
			Help: "Total number of pipeline failures by kind",
		}, []string{"kind"}),
		VerdictConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sound_verdict_confidence",
			Help:    "Confidence of recognized verdicts",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		GateScores: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sound_gate_score",
			Help:    "Scores measured by each gate",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1e-3 to ~16
		}, []string{"gate"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sound_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}, []string{"stage"}),
		AudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sound_audio_size_bytes",
			Help:    "Size of submitted audio payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		ModelRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "sound_model_requests_total",
			Help: "Total number of classifier predictions requested",
		}),
		ModelFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sound_model_failures_total",
			Help: "Total number of failed classifier predictions",
		}),
		ModelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sound_model_duration_seconds",
			Help:    "Duration of classifier predictions",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		ModelAvailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "sound_model_available",
			Help: "1 when the last model verification succeeded",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sound_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sound_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sound_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordVerdict records a recognized clip
func (m *Metrics) RecordVerdict(class string, confidence float64) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(class).Inc()
	m.VerdictConfidence.Observe(confidence)
}

// RecordRejection records a clip rejected by gate
func (m *Metrics) RecordRejection(gate string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(gate).Inc()
}

// RecordGateScore records the score a gate measured
func (m *Metrics) RecordGateScore(gate string, score float64) {
	if m == nil {
		return
	}
	m.GateScores.WithLabelValues(gate).Observe(score)
}

// RecordPipelineError records a failed classification
func (m *Metrics) RecordPipelineError(kind string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(kind).Inc()
}

// RecordStage records the duration of a pipeline stage
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordAudioSize records the size of a submitted payload
func (m *Metrics) RecordAudioSize(sizeBytes int) {
	if m == nil {
		return
	}
	m.AudioBytes.Observe(float64(sizeBytes))
}

// RecordModelSuccess records a successful prediction
func (m *Metrics) RecordModelSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ModelRequests.Inc()
	m.ModelDuration.Observe(durationSeconds)
}

// RecordModelFailure records a failed prediction
func (m *Metrics) RecordModelFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ModelRequests.Inc()
	m.ModelFailures.Inc()
	m.ModelDuration.Observe(durationSeconds)
}

// SetModelAvailable sets the model availability gauge
func (m *Metrics) SetModelAvailable(ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.ModelAvailable.Set(v)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
