package agent

import (
	"io"
	"sync"

	"github.com/ARM-software/gator-sub005/internal/log"
)

// Observer is notified of the significant agent lifecycle events a
// caller (typically the session controller) cares about, matching the
// EventObserver contract sketched in perf_agent_worker_t's doc comment.
type Observer interface {
	OnCaptureReady(pids []int32)
	OnCaptureStarted()
	OnCaptureFailed(reason string)
	OnCaptureCompleted()
}

// FrameSink receives forwarded APC_DATA bytes from ApcFrame messages.
// OnAuxFragments reports how many PERF_AUX frames an ApcFrame bundled,
// for the parent's own metrics registry to account for.
type FrameSink interface {
	WriteAPCData(p []byte) error
	OnAuxFragments(n int)
}

// Worker is the parent-side state machine and message pump for one agent
// process (spec.md §4.6). Construct with NewWorker, then call Pump in its
// own goroutine to drive message dispatch until the transport closes or
// OnSIGCHLD is called.
type Worker struct {
	state stateMachine

	observer Observer
	sink     FrameSink
	launcher func()

	send func(Message) error

	captureConfig    CaptureConfiguration
	startedOnce      sync.Once
	shutdownInitLock sync.Mutex
}

// NewWorker builds a worker that will send captureConfig once the agent
// reports Ready, forward ApcFrame bytes to sink, notify observer, and
// invoke launcher when the agent requests ExecTargetApp. send transmits
// one message to the agent (typically WriteMessage onto its stdin pipe).
func NewWorker(captureConfig CaptureConfiguration, observer Observer, sink FrameSink, launcher func(), send func(Message) error) *Worker {
	return &Worker{
		observer:      observer,
		sink:          sink,
		launcher:      launcher,
		send:          send,
		captureConfig: captureConfig,
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return w.state.current() }

// Pump reads messages from recv until it returns an error (typically
// io.EOF when the agent's stdout pipe closes) or a Shutdown/terminal
// state is reached, dispatching each to its handler per spec.md §4.6's
// table. It does not itself treat transport closure as SIGCHLD — callers
// own the child process and must call OnSIGCHLD from their own reaper.
func (w *Worker) Pump(recv func() (Message, error)) error {
	for {
		msg, err := recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		w.dispatch(msg)
		if w.state.current() >= StateShutdownReceived {
			return nil
		}
	}
}

func (w *Worker) dispatch(msg Message) {
	switch m := msg.(type) {
	case Ready:
		w.state.transition(StateReady)
		if err := w.send(w.captureConfig); err != nil {
			log.Warnf("agent: send CaptureConfiguration failed: %v", err)
			w.initiateShutdown()
		}

	case CaptureReady:
		w.observer.OnCaptureReady(m.PIDs)

	case CaptureStarted:
		w.startedOnce.Do(w.observer.OnCaptureStarted)

	case CaptureFailed:
		w.observer.OnCaptureFailed(m.Reason)

	case ApcFrame:
		if err := w.sink.WriteAPCData(m.Bytes); err != nil {
			log.Warnf("agent: forward apc frame failed: %v", err)
		}
		if m.AuxFragments > 0 {
			w.sink.OnAuxFragments(int(m.AuxFragments))
		}

	case ExecTargetApp:
		w.launcher()

	case Shutdown:
		w.state.transition(StateShutdownReceived)
	}
}

// StartCapture sends Start{monotonicStart} and reports whether the
// message was sent — not whether the capture actually ran.
func (w *Worker) StartCapture(monotonicStart uint64) bool {
	return w.send(Start{MonotonicStart: monotonicStart}) == nil
}

// StopCapture initiates an orderly shutdown by sending Shutdown; send
// failure is ignored (spec.md E6: "sends Shutdown (failure is
// ignored)").
func (w *Worker) StopCapture() {
	w.initiateShutdown()
}

func (w *Worker) initiateShutdown() {
	w.shutdownInitLock.Lock()
	defer w.shutdownInitLock.Unlock()

	w.state.transition(StateShutdownRequested)
	_ = w.send(Shutdown{})
}

// OnSIGCHLD transitions directly to terminated and notifies the observer
// exactly once of capture completion, the back-stop for an agent that
// exits without a clean Shutdown handshake (spec.md §4.6, E6).
func (w *Worker) OnSIGCHLD() {
	if w.state.transition(StateTerminated) {
		w.observer.OnCaptureCompleted()
	}
}
