package sync

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ARM-software/gator-sub005/internal/log"
	"github.com/ARM-software/gator-sub005/internal/timebase"
)

const (
	schedOther = 0
	schedFIFO  = 1
	// SCHED_RESET_ON_FORK, ORed into the policy so a forked child does not
	// inherit the realtime priority.
	schedResetOnFork = 0x40000000
)

// interval is the sync loop's sample period (spec.md §4.5 step 6); a
// package-level var so tests can shrink it instead of waiting 500ms per
// sample.
var interval = 500 * time.Millisecond

// schedParam mirrors struct sched_param's only field on Linux.
type schedParam struct {
	priority int32
}

// Consumer receives one sync sample per tick, addressed by cpu.
type Consumer func(cpu int, rec Record)

// Thread runs one pinned sync loop on a dedicated OS thread. Construct
// with NewThread and start it with Run (typically in its own goroutine);
// call Terminate to stop it, mirroring PerfSyncThread's
// constructor-spawns / terminate()-joins lifecycle.
type Thread struct {
	cpu             int
	readTimer       bool
	syncThreadMode  bool
	monotonicBaseNS uint64
	consumer        Consumer

	terminate atomic.Bool
	done      chan struct{}
}

// NewThread builds a sync thread for the given CPU. readTimer selects
// whether CNTFRQ_EL0/CNTVCT_EL0 are actually read (vs. reported as
// zero); syncThreadMode additionally enables the CPU-0 self-rename used
// to correlate the sync stream with a PERF_RECORD_COMM event.
func NewThread(cpu int, readTimer, syncThreadMode bool, monotonicBaseNS uint64, consumer Consumer) *Thread {
	return &Thread{
		cpu:             cpu,
		readTimer:       readTimer,
		syncThreadMode:  syncThreadMode,
		monotonicBaseNS: monotonicBaseNS,
		consumer:        consumer,
		done:            make(chan struct{}),
	}
}

// Terminate flips the atomic stop flag and waits for the loop to exit,
// mirroring terminate()'s store-then-join.
func (t *Thread) Terminate() {
	t.terminate.Store(true)
	<-t.done
}

// Run pins the calling goroutine's OS thread to t.cpu, attempts a
// SCHED_FIFO priority bump, masks all signals, and enters the 500ms
// sample loop. It must be called in its own goroutine — it locks the OS
// thread for its entire lifetime (spec.md §4.5 steps 1-6).
func (t *Thread) Run() {
	defer close(t.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := unix.Gettid()

	if err := setAffinity(tid, t.cpu); err != nil {
		log.WithField("cpu", t.cpu).Warnf("sched_setaffinity failed: %v", err)
	}

	raisePriority(tid)
	maskAllSignals()

	runtime.Gosched() // yield once to migrate onto the target cpu

	t.rename(timebase.MonotonicRawNS())

	pid := int32(unix.Getpid())
	tidVal := int32(tid)

	for {
		syncTime := timebase.MonotonicRawNS()

		var freq, vcount uint64
		if t.readTimer {
			freq = timebase.CNTFRQEL0()
			vcount = timebase.CNTVCTEL0()
		}

		t.rename(syncTime)

		t.consumer(t.cpu, Record{
			PID:          pid,
			TID:          tidVal,
			CNTFRQ:       int64(freq),
			MonotonicRaw: int64(syncTime),
			CNTVCT:       int64(vcount),
		})

		time.Sleep(interval)

		if t.terminate.Load() {
			return
		}
	}
}

// rename self-identifies the thread via prctl(PR_SET_NAME), encoding the
// monotonic delta in microseconds on CPU 0 in sync-thread mode so a
// PERF_RECORD_COMM event can be correlated back to this sample stream
// (spec.md §4.5 step 5).
func (t *Thread) rename(currentTime uint64) {
	var name string
	if t.syncThreadMode && t.cpu == 0 {
		micros := (currentTime - t.monotonicBaseNS) / 1000
		if micros <= 9999999999 {
			name = fmt.Sprintf("gds-%010d-", micros)
		} else {
			name = "gator-sync-0"
		}
	} else {
		name = fmt.Sprintf("gator-sync-%d", t.cpu)
	}

	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(strPtr(name))), 0, 0, 0)
}

func strPtr(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

func setAffinity(tid int, cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(tid, &set)
}

// raisePriority attempts SCHED_FIFO at its max priority, falling back to
// SCHED_OTHER at its max priority if the caller lacks CAP_SYS_NICE,
// logging (not failing) either way — matching the original's best-effort
// semantics.
func raisePriority(tid int) {
	fifoMax, err := schedGetPriorityMax(schedFIFO)
	if err == nil {
		param := schedParam{priority: int32(fifoMax)}
		if err := schedSetScheduler(tid, schedFIFO|schedResetOnFork, &param); err == nil {
			return
		}
	}

	otherMax, err := schedGetPriorityMax(schedOther)
	if err != nil {
		return
	}
	param := schedParam{priority: int32(otherMax)}
	_ = schedSetScheduler(tid, schedOther|schedResetOnFork, &param)
}

func schedGetPriorityMax(policy int) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_SCHED_GET_PRIORITY_MAX, uintptr(policy), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

func schedSetScheduler(tid int, policy int, param *schedParam) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, uintptr(tid), uintptr(policy), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}

// maskAllSignals blocks every signal on the calling thread so it cannot
// be woken by one, matching sigfillset + sigprocmask(SIG_SETMASK).
func maskAllSignals() {
	var set unix.Sigset_t
	for i := range set.Val {
		set.Val[i] = ^uint64(0)
	}
	_ = unix.PthreadSigmask(unix.SIG_SETMASK, &set, nil)
}
