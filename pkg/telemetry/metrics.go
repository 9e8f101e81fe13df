package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the pipeline updates.
type Metrics struct {
	FrameDropsTotal     *prometheus.CounterVec
	PacketQueueBytes    *prometheus.GaugeVec
	AudioDiffSeconds    prometheus.Gauge
	DecodeSeconds       *prometheus.HistogramVec
	ExternalClockSpeed  prometheus.Gauge
}

// NewMetrics registers every collector with the default registry, following
// the promauto.New* construction pattern.
func NewMetrics() *Metrics {
	return &Metrics{
		FrameDropsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_frame_drops_total",
			Help: "Frames dropped by the sync scheduler, by kind (early/late).",
		}, []string{"kind"}),
		PacketQueueBytes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_packet_queue_bytes",
			Help: "Aggregate bytes queued per stream.",
		}, []string{"stream"}),
		AudioDiffSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "engine_audio_diff_seconds",
			Help: "Audio clock minus master clock, as last computed by synchronize_audio.",
		}),
		DecodeSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_decode_seconds",
			Help:    "Wall time spent in one decode_one call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stream"}),
		ExternalClockSpeed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "engine_external_clock_speed",
			Help: "Current external clock speed multiplier.",
		}),
	}
}

// Serve exposes the registered collectors over HTTP at addr until the
// process exits; errors are returned to the caller to log, not fatal here.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
