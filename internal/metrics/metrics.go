// Package metrics provides the Prometheus metrics of the recorder.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Export outcome labels
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Metrics holds the recorder collectors. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
type Metrics struct {
	framesRecorded prometheus.Counter
	recording      prometheus.Gauge
	exports        *prometheus.CounterVec
	exportDuration prometheus.Histogram
	latency        prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easyrec",
			Name:      "frames_recorded_total",
			Help:      "Stereo frames appended to the record buffer, silence padding included.",
		}),
		recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easyrec",
			Name:      "recording",
			Help:      "1 while the recorder is in record mode.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easyrec",
			Name:      "exports_total",
			Help:      "Finished takes handed to the wavetable, by outcome.",
		}, []string{"status"}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "easyrec",
			Name:      "export_duration_seconds",
			Help:      "Time spent trimming and writing a take into the wavetable.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easyrec",
			Name:      "graph_latency_samples",
			Help:      "Maximum node latency seen at the last export.",
		}),
	}

	for _, c := range []prometheus.Collector{m.framesRecorded, m.recording, m.exports, m.exportDuration, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// AddFrames counts frames appended by the audio callback
func (m *Metrics) AddFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesRecorded.Add(float64(n))
}

// SetRecording flags whether the recorder is in record mode
func (m *Metrics) SetRecording(recording bool) {
	if m == nil {
		return
	}
	if recording {
		m.recording.Set(1)
	} else {
		m.recording.Set(0)
	}
}

// RecordExport counts one export outcome and observes its duration
func (m *Metrics) RecordExport(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(status).Inc()
	m.exportDuration.Observe(d.Seconds())
}

// SetLatency stores the aggregated graph latency
func (m *Metrics) SetLatency(samples int) {
	if m == nil {
		return
	}
	m.latency.Set(float64(samples))
}
