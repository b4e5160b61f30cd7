package agent

// Message is the typed union of records exchanged over the agent IPC
// pipes (spec.md §4.6's dispatch table and §6.3's wire framing).
type Message interface {
	kind() Kind
}

// Ready announces the agent has finished initializing its privileged
// perf handles and is waiting for its capture configuration.
type Ready struct{}

func (Ready) kind() Kind { return KindReady }

// CaptureConfiguration carries the bundled-at-construction configuration
// blob the parent sends once the agent reports Ready. Its payload
// encoding is opaque to the core (spec.md §6.3): it is only ever
// produced by the parent and forwarded verbatim.
type CaptureConfiguration struct {
	Blob []byte
}

func (CaptureConfiguration) kind() Kind { return KindCaptureConfiguration }

// Start tells the agent to begin capturing, anchored to a monotonic
// start time shared with the rest of the pipeline's timestamps.
type Start struct {
	MonotonicStart uint64
}

func (Start) kind() Kind { return KindStart }

// CaptureReady reports the set of PIDs the agent is now monitoring.
type CaptureReady struct {
	PIDs []int32
}

func (CaptureReady) kind() Kind { return KindCaptureReady }

// CaptureStarted reports that sampling has actually begun.
type CaptureStarted struct{}

func (CaptureStarted) kind() Kind { return KindCaptureStarted }

// CaptureFailed reports a failure reason; spec.md §4.6 notes only
// "command_exec_failed" is currently expected in practice.
type CaptureFailed struct {
	Reason string
}

func (CaptureFailed) kind() Kind { return KindCaptureFailed }

// ApcFrame carries one opaque pre-framed APC blob to forward as a single
// APC_DATA response record, bounded by apc.MaxResponseLength. AuxFragments
// counts how many PERF_AUX frames the agent bundled into Bytes this
// round, so the parent can account for them without parsing the blob.
type ApcFrame struct {
	Bytes        []byte
	AuxFragments int32
}

func (ApcFrame) kind() Kind { return KindApcFrame }

// ExecTargetApp asks the parent to invoke its target-app launcher
// callback (the agent cannot exec the profiled command itself once it
// has dropped privileges for perf_event_open).
type ExecTargetApp struct{}

func (ExecTargetApp) kind() Kind { return KindExecTargetApp }

// Shutdown is sent in both directions to request an orderly stop.
type Shutdown struct{}

func (Shutdown) kind() Kind { return KindShutdown }
