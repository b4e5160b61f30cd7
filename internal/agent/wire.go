package agent

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ARM-software/gator-sub005/internal/codec"
)

// Kind tags a Message's wire representation (spec.md §6.3's "u32 kind").
type Kind uint32

const (
	KindReady Kind = iota + 1
	KindCaptureConfiguration
	KindStart
	KindCaptureReady
	KindCaptureStarted
	KindCaptureFailed
	KindApcFrame
	KindExecTargetApp
	KindShutdown
)

// ErrUnknownKind is returned by ReadMessage for an unrecognized kind.
var ErrUnknownKind = errors.New("agent: unknown message kind")

// WriteMessage writes one IPC message as {u32 kind, u32 length, body}.
func WriteMessage(w io.Writer, msg Message) error {
	body, err := encodeBody(msg)
	if err != nil {
		return err
	}

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(msg.kind()))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "agent: write message header")
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return errors.Wrap(err, "agent: write message body")
		}
	}
	return nil
}

// ReadMessage reads one IPC message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	kind := Kind(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, errors.Wrap(err, "agent: read message body")
		}
	}

	return decodeBody(kind, body)
}

func encodeBody(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Ready:
		return nil, nil
	case CaptureConfiguration:
		return m.Blob, nil
	case Start:
		var tmp [codec.MaxPack64]byte
		pos := 0
		n := codec.PackInt64(tmp[:], &pos, int64(m.MonotonicStart), codec.NoWrap)
		return tmp[:n], nil
	case CaptureReady:
		var buf []byte
		var tmp [codec.MaxPack32]byte
		pos := 0
		n := codec.PackInt32(tmp[:], &pos, int32(len(m.PIDs)), codec.NoWrap)
		buf = append(buf, tmp[:n]...)
		for _, pid := range m.PIDs {
			pos = 0
			n = codec.PackInt32(tmp[:], &pos, pid, codec.NoWrap)
			buf = append(buf, tmp[:n]...)
		}
		return buf, nil
	case CaptureStarted:
		return nil, nil
	case CaptureFailed:
		return []byte(m.Reason), nil
	case ApcFrame:
		var tmp [codec.MaxPack32]byte
		pos := 0
		n := codec.PackInt32(tmp[:], &pos, m.AuxFragments, codec.NoWrap)
		buf := make([]byte, 0, n+len(m.Bytes))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, m.Bytes...)
		return buf, nil
	case ExecTargetApp:
		return nil, nil
	case Shutdown:
		return nil, nil
	default:
		return nil, errors.Errorf("agent: unencodable message type %T", msg)
	}
}

func decodeBody(kind Kind, body []byte) (Message, error) {
	switch kind {
	case KindReady:
		return Ready{}, nil
	case KindCaptureConfiguration:
		return CaptureConfiguration{Blob: body}, nil
	case KindStart:
		pos := 0
		return Start{MonotonicStart: uint64(codec.UnpackInt64(body, &pos))}, nil
	case KindCaptureReady:
		pos := 0
		count := codec.UnpackInt32(body, &pos)
		pids := make([]int32, 0, count)
		for i := int32(0); i < count; i++ {
			pids = append(pids, codec.UnpackInt32(body, &pos))
		}
		return CaptureReady{PIDs: pids}, nil
	case KindCaptureStarted:
		return CaptureStarted{}, nil
	case KindCaptureFailed:
		return CaptureFailed{Reason: string(body)}, nil
	case KindApcFrame:
		pos := 0
		auxFragments := codec.UnpackInt32(body, &pos)
		return ApcFrame{Bytes: body[pos:], AuxFragments: auxFragments}, nil
	case KindExecTargetApp:
		return ExecTargetApp{}, nil
	case KindShutdown:
		return Shutdown{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%d", kind)
	}
}
