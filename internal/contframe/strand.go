package contframe

import "context"

// ExecutorMode mirrors the three boost::asio invocation guarantees
// detail/on_executor.h switches on: Dispatch may run inline if already on
// the strand, Post always schedules after the current turn, Defer is Post
// with a hint that the caller is about to continue its own chain.
type ExecutorMode int

const (
	Dispatch ExecutorMode = iota
	Post
	Defer
)

// Strand is a single-goroutine serialized executor: every task posted to
// it runs one at a time, in submission order, the Go equivalent of an
// asio::strand.
type Strand struct {
	tasks chan func()
	done  chan struct{}
}

// NewStrand starts a strand's run loop and returns it ready for use.
func NewStrand() *Strand {
	s := &Strand{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Strand) run() {
	for {
		select {
		case f := <-s.tasks:
			f()
		case <-s.done:
			return
		}
	}
}

// Close stops the strand's run loop. Pending tasks are dropped.
func (s *Strand) Close() { close(s.done) }

// run1 submits f to the strand and blocks until it has executed. asio's
// Dispatch mode may run inline when already on the strand; Go has no
// cheap way to test goroutine identity, so all three modes behave as
// Post here — strictly serialized, just never inlined.
func (s *Strand) run1(mode ExecutorMode, f func()) {
	done := make(chan struct{})
	s.tasks <- func() {
		f()
		close(done)
	}
	<-done
}

// OnExecutor re-homes a continuation's execution onto ex, the equivalent
// of detail/on_executor.h.
func OnExecutor[T any](c Continuation[T], ex *Strand, mode ExecutorMode) Continuation[T] {
	return func(ctx context.Context) (T, error) {
		var v T
		var err error
		ex.run1(mode, func() {
			v, err = c(ctx)
		})
		return v, err
	}
}
