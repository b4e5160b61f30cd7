package agent

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObserver struct{ mock.Mock }

func (m *mockObserver) OnCaptureReady(pids []int32)   { m.Called(pids) }
func (m *mockObserver) OnCaptureStarted()             { m.Called() }
func (m *mockObserver) OnCaptureFailed(reason string) { m.Called(reason) }
func (m *mockObserver) OnCaptureCompleted()            { m.Called() }

type mockSink struct{ mock.Mock }

func (m *mockSink) WriteAPCData(p []byte) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *mockSink) OnAuxFragments(n int) { m.Called(n) }

func queueRecv(msgs ...Message) func() (Message, error) {
	i := 0
	return func() (Message, error) {
		if i >= len(msgs) {
			return nil, io.EOF
		}
		m := msgs[i]
		i++
		return m, nil
	}
}

func TestStateMachineForwardOnly(t *testing.T) {
	var sm stateMachine
	assert.True(t, sm.transition(StateReady))
	assert.False(t, sm.transition(StateInitial)) // backward move refused
	assert.False(t, sm.transition(StateReady))    // same state refused
	assert.True(t, sm.transition(StateTerminated))
	assert.Equal(t, StateTerminated, sm.current())
}

func TestWorkerReadySendsCaptureConfiguration(t *testing.T) {
	observer := &mockObserver{}
	sink := &mockSink{}

	var sent []Message
	w := NewWorker(CaptureConfiguration{Blob: []byte("cfg")}, observer, sink, func() {}, func(m Message) error {
		sent = append(sent, m)
		return nil
	})

	require.NoError(t, w.Pump(queueRecv(Ready{})))
	require.Len(t, sent, 1)
	assert.Equal(t, CaptureConfiguration{Blob: []byte("cfg")}, sent[0])
	assert.Equal(t, StateReady, w.State())
}

func TestWorkerDispatchesApcFrameAndObserverEvents(t *testing.T) {
	observer := &mockObserver{}
	observer.On("OnCaptureReady", []int32{1, 2}).Once()
	observer.On("OnCaptureStarted").Once()
	observer.On("OnCaptureFailed", "command_exec_failed").Once()

	sink := &mockSink{}
	sink.On("WriteAPCData", []byte("frame-bytes")).Return(nil).Once()

	w := NewWorker(CaptureConfiguration{}, observer, sink, func() {}, func(Message) error { return nil })

	err := w.Pump(queueRecv(
		CaptureReady{PIDs: []int32{1, 2}},
		CaptureStarted{},
		CaptureStarted{}, // started fires its callback at most once
		CaptureFailed{Reason: "command_exec_failed"},
		ApcFrame{Bytes: []byte("frame-bytes")},
	))
	require.NoError(t, err)

	observer.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestWorkerReportsAuxFragmentsOnlyWhenNonZero(t *testing.T) {
	observer := &mockObserver{}
	sink := &mockSink{}
	sink.On("WriteAPCData", []byte("a")).Return(nil).Once()
	sink.On("WriteAPCData", []byte("b")).Return(nil).Once()
	sink.On("OnAuxFragments", 3).Once()

	w := NewWorker(CaptureConfiguration{}, observer, sink, func() {}, func(Message) error { return nil })

	err := w.Pump(queueRecv(
		ApcFrame{Bytes: []byte("a")},
		ApcFrame{Bytes: []byte("b"), AuxFragments: 3},
	))
	require.NoError(t, err)
	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "OnAuxFragments", 0)
}

func TestE6AgentShutdownOnSendFailure(t *testing.T) {
	observer := &mockObserver{}
	observer.On("OnCaptureCompleted").Once()
	sink := &mockSink{}

	var sentShutdown bool
	send := func(m Message) error {
		switch m.(type) {
		case CaptureConfiguration:
			return errors.New("pipe closed")
		case Shutdown:
			sentShutdown = true
			return nil
		}
		return nil
	}

	w := NewWorker(CaptureConfiguration{}, observer, sink, func() {}, send)

	require.NoError(t, w.Pump(queueRecv(Ready{})))
	assert.True(t, sentShutdown)
	assert.Equal(t, StateShutdownRequested, w.State())

	w.OnSIGCHLD()
	assert.Equal(t, StateTerminated, w.State())

	// A second SIGCHLD must not re-notify the observer.
	w.OnSIGCHLD()
	observer.AssertExpectations(t)
}

func TestWireMessageRoundTrip(t *testing.T) {
	cases := []Message{
		Ready{},
		CaptureConfiguration{Blob: []byte{1, 2, 3}},
		Start{MonotonicStart: 123456789},
		CaptureReady{PIDs: []int32{10, -5, 0}},
		CaptureStarted{},
		CaptureFailed{Reason: "command_exec_failed"},
		ApcFrame{Bytes: []byte("hello")},
		ApcFrame{Bytes: []byte("world"), AuxFragments: 7},
		ExecTargetApp{},
		Shutdown{},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, want))
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
