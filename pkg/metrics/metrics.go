// Package metrics exposes prometheus counters and gauges for the
// capture pipeline's own health: frames committed, bytes sent, buffer
// drops, AUX fragments emitted. It interprets nothing about counter
// *semantics* coming off perf or the annotation socket — that is the
// domain the pipeline carries opaquely — so these metrics are carried
// regardless of which capture features a given session enables, the
// same way the teacher's comp/core/telemetry wraps client_golang for
// cross-cutting instrumentation independent of any one check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gatord"

// Registry bundles every counter/gauge the core publishes. Construct
// with New and register it on whatever *prometheus.Registry the caller
// runs (typically prometheus.DefaultRegisterer).
type Registry struct {
	FramesCommitted   *prometheus.CounterVec
	BytesSent         prometheus.Counter
	BufferFullDrops   *prometheus.CounterVec
	AuxFragmentsSent  prometheus.Counter
	OutboundQueueFill prometheus.Gauge
}

// New builds a Registry with all metrics initialized but unregistered.
func New() *Registry {
	return &Registry{
		FramesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "frames_committed_total",
			Help:      "Frames committed to an outbound buffer, by frame type.",
		}, []string{"frame_type"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "bytes_sent_total",
			Help:      "Bytes of APC response records sent to the live or local sink.",
		}),
		BufferFullDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "full_drops_total",
			Help:      "Writes refused because an outbound buffer latched full, by buffer mode.",
		}, []string{"buffer_mode"}),
		AuxFragmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "perfring",
			Name:      "aux_fragments_sent_total",
			Help:      "PERF_AUX frames emitted while fragmenting AUX ring records.",
		}),
		OutboundQueueFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "outbound_queue_bytes",
			Help:      "Bytes currently queued in the outbound ring buffer.",
		}),
	}
}

// MustRegister registers every metric on reg, panicking on duplicate
// registration (mirrors the prometheus idiom used throughout the
// teacher's telemetry component).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.FramesCommitted,
		r.BytesSent,
		r.BufferFullDrops,
		r.AuxFragmentsSent,
		r.OutboundQueueFill,
	)
}
