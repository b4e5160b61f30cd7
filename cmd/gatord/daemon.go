package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ARM-software/gator-sub005/internal/agent"
	"github.com/ARM-software/gator-sub005/internal/annotate"
	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/blockcounter"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/config"
	"github.com/ARM-software/gator-sub005/internal/driver"
	"github.com/ARM-software/gator-sub005/internal/log"
	"github.com/ARM-software/gator-sub005/internal/sync"
	"github.com/ARM-software/gator-sub005/internal/timebase"
	"github.com/ARM-software/gator-sub005/pkg/metrics"
)

// commitRateNS bounds how long a block-counter FrameBuilder may hold an
// event open before forcing a commit, matching the original's "commit at
// least once a second regardless of fill level" policy.
const commitRateNS = uint64(time.Second)

// driverPollInterval is the polled-driver harness's shared tick rate
// (spec.md's polled-counter sources, e.g. MemInfoDriver, are sampled on
// their own cadence independent of the perf ring and sync-thread paths).
const driverPollInterval = time.Second

// daemonOptions bundles root.go's flag values too numerous to thread
// individually through runDaemon.
type daemonOptions struct {
	metricsAddr string
	captureDir  string
	liveAddr    string
}

// runDaemon is the capture core's main loop (spec.md §2's data-flow
// diagram): it owns the single outbound buffer, fans every producer
// (the re-exec'd perf agent, the annotation socket, the sync threads,
// the polled-driver harness) into it, and drains it to the selected
// sink until the session's duration elapses, SIGINT/SIGTERM arrives, or
// a supervised goroutine fails.
func runDaemon(ctx context.Context, sess *config.Session, opts daemonOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sess.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sess.Duration)
		defer cancel()
	}

	sessionID := uuid.New()
	setupLog := &config.SetupLog{}

	ob := buffer.New(buffer.CapacityForMode(sess.BufferMode), sess.BufferMode != buffer.BufferModeStreaming)
	raw := buffer.NewRawFrameBuilder(ob)

	reg := metrics.New()
	if opts.metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		reg.MustRegister(promReg)
		serveMetrics(ctx, opts.metricsAddr, promReg)
	}

	ob.OnFull(func() {
		reg.BufferFullDrops.WithLabelValues(sess.BufferMode.String()).Inc()
	})
	raw.OnCommit(func(ft apc.FrameType) {
		reg.FramesCommitted.WithLabelValues(ft.String()).Inc()
	})

	sink, err := openSink(opts.captureDir, opts.liveAddr, sessionID)
	if err != nil {
		return errors.Wrap(err, "daemon: open output sink")
	}
	defer sink.Close()

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return runSender(ctx, ob, countingWriter{w: sink, counter: reg.BytesSent})
	})

	if err := runAnnotationListener(ctx, wg, raw); err != nil {
		setupLog.Append("Annotations\nFailed to start annotation listener: " + err.Error())
	}

	if err := runAgent(ctx, wg, sess, raw, reg); err != nil {
		return errors.Wrap(err, "daemon: start agent")
	}

	runSyncThreads(ctx, wg, sess, raw)

	runDrivers(ctx, wg, setupLog, raw)

	runQueueFillGauge(ctx, wg, ob, reg)

	err = wg.Wait()
	ob.SetDone()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// countingWriter tallies bytes written through it into a prometheus
// counter without the sender loop needing to know metrics exist.
type countingWriter struct {
	w       io.Writer
	counter prometheus.Counter
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.counter.Add(float64(n))
	return n, err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("addr", addr).Warnf("metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// runAnnotationListener binds the annotation socket and serves it for
// the daemon's lifetime, reporting a non-nil error only for bind
// failures — a running capture should continue without the annotation
// path rather than abort (spec.md §6.2 is an optional producer).
func runAnnotationListener(ctx context.Context, wg *errgroup.Group, raw *buffer.RawFrameBuilder) error {
	ln, err := annotate.NewListener(annotate.NewFrameSink(raw))
	if err != nil {
		return err
	}
	wg.Go(func() error {
		return ln.Serve(ctx)
	})
	return nil
}

// daemonObserver logs the agent lifecycle events a real session
// controller would otherwise surface to a UI; this core has no UI layer
// of its own (spec.md's scope ends at the capture pipeline).
type daemonObserver struct{}

func (daemonObserver) OnCaptureReady(pids []int32) {
	log.WithField("pids", pids).Infof("agent: capture ready")
}
func (daemonObserver) OnCaptureStarted() { log.Infof("agent: capture started") }
func (daemonObserver) OnCaptureFailed(reason string) {
	log.WithField("reason", reason).Warnf("agent: capture failed")
}
func (daemonObserver) OnCaptureCompleted() { log.Infof("agent: capture completed") }

// agentFrameSink implements agent.FrameSink by committing each
// ApcFrame's bytes verbatim as its own response record, since the blob
// may already contain more than one frame internally. OnAuxFragments
// tallies the PERF_AUX frames the agent's perf-ring relay bundled into
// each forwarded blob, the one metric this core cannot observe directly
// since the ring draining happens in the agent's own process.
type agentFrameSink struct {
	raw *buffer.RawFrameBuilder
	reg *metrics.Registry
}

func (s agentFrameSink) WriteAPCData(p []byte) error {
	if !s.raw.WaitForSpace(apc.ResponseHeaderSize + len(p)) {
		return nil
	}
	return s.raw.WriteRawResponse(p)
}

func (s agentFrameSink) OnAuxFragments(n int) {
	s.reg.AuxFragmentsSent.Add(float64(n))
}

// runAgent spawns the re-exec'd agent process and pumps its message
// stream on a supervised goroutine until the transport closes, ctx is
// canceled, or the child exits (reaped via Wait on its own goroutine,
// feeding the worker's SIGCHLD back-stop per spec.md §4.6 E6).
func runAgent(ctx context.Context, wg *errgroup.Group, sess *config.Session, raw *buffer.RawFrameBuilder, reg *metrics.Registry) error {
	proc, err := agent.Spawn()
	if err != nil {
		return err
	}

	captureConfig := agent.CaptureConfiguration{Blob: encodeCaptureConfig(sess)}
	launcher := func() {
		log.Warnf("agent: target-app launch requested but no launcher is configured")
	}

	// Start follows CaptureConfiguration on the same pipe, so the agent
	// begins capturing as soon as it holds its configuration.
	var worker *agent.Worker
	send := func(msg agent.Message) error {
		if err := proc.Send(msg); err != nil {
			return err
		}
		if _, ok := msg.(agent.CaptureConfiguration); ok && !worker.StartCapture(timebase.MonotonicRawNS()) {
			return errors.New("daemon: send Start failed")
		}
		return nil
	}
	worker = agent.NewWorker(captureConfig, daemonObserver{}, agentFrameSink{raw: raw, reg: reg}, launcher, send)

	wg.Go(func() error {
		err := worker.Pump(proc.Recv)
		worker.OnSIGCHLD()
		return err
	})
	wg.Go(func() error {
		_ = proc.Wait()
		worker.OnSIGCHLD()
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		worker.StopCapture()
		return nil
	})

	return nil
}

// encodeCaptureConfig builds the opaque blob handed to the agent as its
// CaptureConfiguration payload. Its internal layout is a core-local
// choice (spec.md §6.3 leaves it opaque); here it is simply the
// sample rate as four little-endian bytes followed by one
// call-stack-unwinding flag byte, the two session fields the agent needs
// to configure perf_event_open.
func encodeCaptureConfig(sess *config.Session) []byte {
	unwind := int32(0)
	if sess.CallStackUnwinding {
		unwind = 1
	}
	return []byte{
		byte(sess.SampleRate), byte(sess.SampleRate >> 8), byte(sess.SampleRate >> 16), byte(sess.SampleRate >> 24),
		byte(unwind),
	}
}

// runSyncThreads starts one sync.Thread per CPU sync.ThreadCount selects
// (spec.md §4.5's factory rule), each committing its samples immediately
// via sync.EmitFrame.
func runSyncThreads(ctx context.Context, wg *errgroup.Group, sess *config.Session, raw *buffer.RawFrameBuilder) {
	const spe = false            // SPE support is not wired in this build.
	const supportsClockID = false // conservative default absent a real clock-ID probe.

	cpus := sync.ThreadCount(spe, supportsClockID, runtime.NumCPU())
	base := timebase.MonotonicRawNS()

	for _, cpu := range cpus {
		cpu := cpu
		th := sync.NewThread(cpu, supportsClockID, true, base, func(c int, rec sync.Record) {
			if err := sync.EmitFrame(raw, rec); err != nil {
				log.WithField("cpu", c).Warnf("sync: emit frame failed: %v", err)
			}
		})
		wg.Go(func() error {
			done := make(chan struct{})
			go func() { th.Run(); close(done) }()
			select {
			case <-ctx.Done():
				th.Terminate()
				<-done
			case <-done:
			}
			return nil
		})
	}
}

// queueFillInterval is how often the outbound queue's fill gauge is
// sampled; it is ambient instrumentation, not a producer, so it gets its
// own cadence independent of the sender's drain loop.
const queueFillInterval = 200 * time.Millisecond

// runQueueFillGauge periodically publishes the shared outbound buffer's
// queued-but-undrained byte count, giving an operator visibility into how
// close the buffer is to latching full before BufferFullDrops fires.
func runQueueFillGauge(ctx context.Context, wg *errgroup.Group, ob *buffer.OutboundBuffer, reg *metrics.Registry) {
	wg.Go(func() error {
		ticker := time.NewTicker(queueFillInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				reg.OutboundQueueFill.Set(float64(ob.QueuedBytes()))
			}
		}
	})
}

// runDrivers starts the polled-driver harness with the one concrete
// driver this core carries end to end, MemInfoDriver, gated by its own
// accessibility check. It shares the session's single outbound buffer
// with every other producer: the block-counter frame it holds open is
// always closed again before Poll returns (driverPollInterval equals
// commitRateNS), so the shared single-open-frame invariant only narrows
// briefly rather than blocking other producers for a whole tick.
func runDrivers(ctx context.Context, wg *errgroup.Group, setupLog *config.SetupLog, raw *buffer.RawFrameBuilder) {
	mi := driver.NewMemInfoDriver(0, int32(os.Getpid()))
	if !mi.CheckAccess(setupLog) {
		return
	}

	h := driver.NewHarness(driverPollInterval, mi)
	wg.Go(func() error {
		return h.Run(ctx, func(d driver.Driver) *blockcounter.MessageConsumer {
			fb := blockcounter.NewFrameBuilder(raw, commitRateNS)
			return blockcounter.NewMessageConsumer(fb)
		})
	})
}
