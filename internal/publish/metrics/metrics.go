// Package metrics provides Prometheus metrics for the publish pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all publish pipeline metrics.
type Metrics struct {
	PublishesTotal      *prometheus.CounterVec   // terminal outcomes by kind (text, video) and outcome
	StageDuration       *prometheus.HistogramVec // time spent per pipeline stage
	JobPollsTotal       *prometheus.CounterVec   // job status polls by observed state
	UploadedBytesTotal  prometheus.Counter
	PublishesInProgress prometheus.Gauge
}

// New registers the metrics with reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		PublishesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slowclaw_publish_total",
			Help: "Publish calls by content kind and terminal outcome (done or failure kind)",
		}, []string{"kind", "outcome"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slowclaw_publish_stage_duration_seconds",
			Help:    "Duration of publish pipeline stages",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"stage"}),

		JobPollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slowclaw_video_job_polls_total",
			Help: "Video job status polls by observed state",
		}, []string{"state"}),

		UploadedBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "slowclaw_video_uploaded_bytes_total",
			Help: "Bytes of video accepted by the processing host",
		}),

		PublishesInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slowclaw_publish_in_progress",
			Help: "Publish calls currently running",
		}),
	}
}

// RecordOutcome counts one terminal publish outcome.
func (m *Metrics) RecordOutcome(kind, outcome string) {
	if m == nil {
		return
	}
	m.PublishesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPoll counts one job status poll.
func (m *Metrics) RecordPoll(state string) {
	if m == nil {
		return
	}
	m.JobPollsTotal.WithLabelValues(state).Inc()
}

// AddUploadedBytes counts accepted upload bytes.
func (m *Metrics) AddUploadedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.UploadedBytesTotal.Add(float64(n))
}

// Started marks a publish call as running.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.PublishesInProgress.Inc()
}

// Finished marks a publish call as no longer running.
func (m *Metrics) Finished() {
	if m == nil {
		return
	}
	m.PublishesInProgress.Dec()
}
