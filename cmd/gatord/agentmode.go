package main

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ARM-software/gator-sub005/internal/agent"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/log"
	"github.com/ARM-software/gator-sub005/internal/perfring"
)

// perfRingDataPages is the data-region mmap size handed to perfring.Map,
// in pages: one leading control page plus 2^n data pages (spec.md §3.1's
// mmap layout). AUX is not requested (a 0 auxPages argument): hardware
// trace sources (Arm SPE, Intel PT) are outside this build's scope, so
// DrainAux runs every tick as a guaranteed no-op rather than being left
// uncalled.
const perfRingDataPages = 1 + 8

// perfRingPollInterval is how often each CPU's ring is drained and
// forwarded to the parent as an ApcFrame.
const perfRingPollInterval = 50 * time.Millisecond

// runAgentPerf is the re-exec'd agent side of the IPC handshake (spec.md
// §4.6/§6.3). Opening and scheduling the kernel perf event is this
// binary's own privileged job; once a CPU's ring is mapped, draining it
// into PERF_DATA/PERF_AUX frames through internal/perfring is the same
// ring-consumer/adapter this core carries end to end — it runs here, in
// the agent's address space, because that is where the open perf_event
// fd lives, and is forwarded back to the parent as ApcFrame messages over
// the existing stdout IPC pipe.
func runAgentPerf() error {
	stdin, stdout := os.Stdin, os.Stdout
	var stdoutMu sync.Mutex
	send := func(msg agent.Message) error {
		stdoutMu.Lock()
		defer stdoutMu.Unlock()
		return agent.WriteMessage(stdout, msg)
	}

	if err := send(agent.Ready{}); err != nil {
		return err
	}

	var rings []*perfRingRelay
	stopRings := func() {
		for _, r := range rings {
			r.stop()
		}
		rings = nil
	}
	defer stopRings()

	for {
		msg, err := agent.ReadMessage(stdin)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case agent.CaptureConfiguration:
			log.WithField("bytes", len(m.Blob)).Debugf("agent: received capture configuration")

		case agent.Start:
			rings = startPerfRings(send)
			if err := send(agent.CaptureReady{PIDs: nil}); err != nil {
				return err
			}
			if err := send(agent.CaptureStarted{}); err != nil {
				return err
			}

		case agent.Shutdown:
			stopRings()
			return send(agent.Shutdown{})

		default:
			log.WithField("type", m).Warnf("agent: unexpected message")
		}
	}
}

// startPerfRings opens and maps one ring per CPU, skipping (and logging)
// any CPU whose perf_event_open or mmap fails. An unprivileged or
// sandboxed agent should still hand back a usable capture rather than
// fail the whole session — the same check-and-skip posture
// driver.MemInfoDriver uses for an inaccessible counter source.
func startPerfRings(send func(agent.Message) error) []*perfRingRelay {
	var relays []*perfRingRelay
	for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
		consumer, closer, err := openPerfRing(cpu)
		if err != nil {
			log.WithField("cpu", cpu).Warnf("agent: perf ring unavailable: %v", err)
			continue
		}
		relays = append(relays, newPerfRingRelay(cpu, consumer, closer, send))
	}
	return relays
}

// openPerfRing opens a per-CPU software perf event, starts it disabled,
// mmaps its ring via perfring.Map, then enables it.
func openPerfRing(cpu int) (*perfring.Consumer, func() error, error) {
	attr := unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_SOFTWARE,
		Config:      unix.PERF_COUNT_SW_CPU_CLOCK,
		Bits:        unix.PerfBitDisabled | unix.PerfBitWatermark,
		Sample_type: unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_TIME,
		Wakeup:      1,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))

	fd, err := unix.PerfEventOpen(&attr, -1, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "agent: perf_event_open cpu %d", cpu)
	}

	consumer, closer, err := perfring.Map(cpu, fd, perfRingDataPages, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, nil, err
	}

	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		_ = closer()
		_ = unix.Close(fd)
		return nil, nil, errors.Wrapf(err, "agent: enable perf event cpu %d", cpu)
	}

	return consumer, func() error {
		err := closer()
		if cerr := unix.Close(fd); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// perfRingRelay drains one CPU's ring on its own ticker into a small
// local outbound buffer, forwarding every non-empty batch as a single
// ApcFrame message and resetting before the next tick.
type perfRingRelay struct {
	cpu      int
	consumer *perfring.Consumer
	closer   func() error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newPerfRingRelay(cpu int, consumer *perfring.Consumer, closer func() error, send func(agent.Message) error) *perfRingRelay {
	r := &perfRingRelay{
		cpu:      cpu,
		consumer: consumer,
		closer:   closer,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run(send)
	return r
}

func (r *perfRingRelay) run(send func(agent.Message) error) {
	defer close(r.done)

	localBuf := buffer.New(64*1024, false)
	raw := buffer.NewRawFrameBuilder(localBuf)
	adapter := perfring.NewAdapter(raw)

	var auxFragments int32
	adapter.OnAuxFrame(func() { auxFragments++ })

	ticker := time.NewTicker(perfRingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		}

		if err := adapter.DrainData(r.consumer); err != nil {
			log.WithField("cpu", r.cpu).Warnf("agent: perf ring drain data failed: %v", err)
			return
		}
		if err := adapter.DrainAux(r.consumer); err != nil {
			log.WithField("cpu", r.cpu).Warnf("agent: perf ring drain aux failed: %v", err)
			return
		}

		var out bytes.Buffer
		for {
			n0 := out.Len()
			if _, err := localBuf.Write(&out); err != nil {
				log.WithField("cpu", r.cpu).Warnf("agent: perf ring local drain failed: %v", err)
				return
			}
			if out.Len() == n0 {
				break
			}
		}

		if out.Len() == 0 {
			auxFragments = 0
			continue
		}

		frame := agent.ApcFrame{Bytes: out.Bytes(), AuxFragments: auxFragments}
		auxFragments = 0
		if err := send(frame); err != nil {
			log.WithField("cpu", r.cpu).Warnf("agent: perf ring forward failed: %v", err)
			return
		}
	}
}

func (r *perfRingRelay) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
	if r.closer != nil {
		_ = r.closer()
	}
}
