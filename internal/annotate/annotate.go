// Package annotate implements the core's side of the annotation
// sub-protocol (spec.md §6.2): a Linux abstract-namespace UNIX socket on
// which instrumented applications (linked against libstreamline_annotate)
// connect, handshake, and stream a sequence of typed messages that the
// core repackages as ANNOTATE frames.
package annotate

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/ARM-software/gator-sub005/internal/contframe"
	"github.com/ARM-software/gator-sub005/internal/log"
)

// socketName and parentSocketName are Linux abstract-namespace addresses:
// a leading '@' maps to the abstract namespace (no filesystem entry),
// matching the client library's `\0streamline-annotate` convention.
const (
	socketName       = "@streamline-annotate"
	parentSocketName = "@streamline-annotate-parent"
	handshake        = "ANNOTATE 3\n"
)

// MessageType is the client message's wire type byte (spec.md §6.2).
type MessageType byte

const (
	MessageUTF8           MessageType = 0x01
	MessageUTF8Color      MessageType = 0x02
	MessageChannelName    MessageType = 0x03
	MessageGroupName      MessageType = 0x04
	MessageVisual         MessageType = 0x05
	MessageMarker         MessageType = 0x06
	MessageMarkerColor    MessageType = 0x07
	MessageCounter        MessageType = 0x08
	MessageCounterValue   MessageType = 0x09
	MessageActivitySwitch MessageType = 0x0a
	MessageCamTrack       MessageType = 0x0b
	MessageCamJob         MessageType = 0x0c
	MessageCamViewName    MessageType = 0x0d
)

// ErrBadHandshake is returned when a client's opening line does not match
// the expected "ANNOTATE 3\n" string.
var ErrBadHandshake = errors.New("annotate: unexpected handshake")

// Sink receives one decoded client message at a time, tagged with the
// pid/tid the client reported in its header.
type Sink interface {
	WriteAnnotateMessage(pid, tid int32, msgType MessageType, body []byte) error
}

// Listener accepts annotation client connections and a parent-supervisor
// connection used only to deliver reconnect wakeups.
type Listener struct {
	ln       *net.UnixListener
	parentLn *net.UnixListener
	sink     Sink
}

// NewListener binds both abstract-namespace sockets.
func NewListener(sink Sink) (*Listener, error) {
	addr, err := net.ResolveUnixAddr("unix", socketName)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}

	parentAddr, err := net.ResolveUnixAddr("unix", parentSocketName)
	if err != nil {
		ln.Close()
		return nil, err
	}
	parentLn, err := net.ListenUnix("unix", parentAddr)
	if err != nil {
		ln.Close()
		return nil, err
	}

	return &Listener{ln: ln, parentLn: parentLn, sink: sink}, nil
}

// Close shuts down both listening sockets.
func (l *Listener) Close() error {
	err1 := l.ln.Close()
	err2 := l.parentLn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Wake writes a single wakeup byte to every connection currently on the
// parent supervisor socket, telling clients on the other end to
// reconnect to the main socket (spec.md §6.2).
func (l *Listener) Wake(conns []*net.UnixConn) {
	for _, c := range conns {
		_, _ = c.Write([]byte{1})
	}
}

// Serve accepts client connections, handling each on its own goroutine,
// until ctx is canceled. The accept cycle itself is expressed as a
// contframe.Loop: each iteration is one Accept-and-dispatch step, guarded
// by ctx.Err() as the loop predicate.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	step := contframe.Loop(contframe.StartWith(struct{}{}),
		func(struct{}) bool { return ctx.Err() == nil },
		func(ctx context.Context, _ struct{}) contframe.Continuation[struct{}] {
			return func(context.Context) (struct{}, error) {
				conn, err := l.ln.AcceptUnix()
				if err != nil {
					return struct{}{}, err
				}
				go l.handleConn(conn)
				return struct{}{}, nil
			}
		})

	_, err := step(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *Listener) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		log.WithField("component", "annotate").Warnf("read handshake: %v", err)
		return
	}
	if line != handshake {
		log.WithField("component", "annotate").Warnf("%v: %q", ErrBadHandshake, line)
		return
	}

	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		log.WithField("component", "annotate").Warnf("read header: %v", err)
		return
	}
	tid := int32(binary.LittleEndian.Uint32(hdr[0:4]))
	pid := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	// hdr[8] is dont_mangle_keys; the core treats key mangling as a
	// client-library-local concern and does not interpret it.

	for {
		msgType, body, err := readMessage(r)
		if err != nil {
			if err != io.EOF {
				log.WithField("component", "annotate").Warnf("read message: %v", err)
			}
			return
		}
		if err := l.sink.WriteAnnotateMessage(pid, tid, msgType, body); err != nil {
			log.WithField("component", "annotate").Warnf("write annotate message: %v", err)
			return
		}
	}
}

func readMessage(r *bufio.Reader) (MessageType, []byte, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, nil, err
	}
	msgType := MessageType(head[0])
	length := binary.BigEndian.Uint32(head[1:5])

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}
	return msgType, body, nil
}
