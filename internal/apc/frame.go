// Package apc defines the Annotated Program Capture wire-format constants
// shared between the daemon core and the Streamline viewer: the response
// record header and the set of frame types that may appear inside it.
package apc

// ResponseType identifies the kind of response record on the wire.
type ResponseType byte

// ResponseTypeAPCData is the only response type the core core emits.
const ResponseTypeAPCData ResponseType = 1

// MaxResponseLength bounds a single response record's payload.
const MaxResponseLength = 1 << 20 // ~1 MiB

// FrameType is the varint-encoded tag at the start of every frame body.
// Values are fixed on the wire and shared with the viewer.
type FrameType int32

const (
	FrameSummary        FrameType = 1
	FrameBacktrace      FrameType = 2
	FrameName           FrameType = 3
	FrameCounter        FrameType = 4
	FrameBlockCounter   FrameType = 5
	FrameAnnotate       FrameType = 6
	FrameSchedTrace     FrameType = 7
	FrameGPUTrace       FrameType = 8
	FrameIdle           FrameType = 9
	FramePerfAttrs      FrameType = 10
	FramePerf           FrameType = 11
	FramePerfAux        FrameType = 12
	FramePerfSync       FrameType = 13
	FrameActivityTrace  FrameType = 14
	FrameExternal       FrameType = 15
	FramePerfData       FrameType = 16
)

// ResponseHeaderSize is the fixed-size header preceding every response
// record's payload: one byte response type, four bytes little-endian length.
const ResponseHeaderSize = 1 + 4

var frameTypeNames = map[FrameType]string{
	FrameSummary:       "summary",
	FrameBacktrace:     "backtrace",
	FrameName:          "name",
	FrameCounter:       "counter",
	FrameBlockCounter:  "block_counter",
	FrameAnnotate:      "annotate",
	FrameSchedTrace:    "sched_trace",
	FrameGPUTrace:      "gpu_trace",
	FrameIdle:          "idle",
	FramePerfAttrs:     "perf_attrs",
	FramePerf:          "perf",
	FramePerfAux:       "perf_aux",
	FramePerfSync:      "perf_sync",
	FrameActivityTrace: "activity_trace",
	FrameExternal:      "external",
	FramePerfData:      "perf_data",
}

// String renders a frame type as the label pkg/metrics attaches to its
// per-frame-type counter vector.
func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
