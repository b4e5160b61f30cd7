package main

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/log"
)

// openSink resolves the capture's output: a local capture file under
// captureDir if set, otherwise a live TCP connection to addr, matching
// spec.md §6.4's "live (stream to TCP socket) or local capture (write to
// apc/ directory)" output modes.
func openSink(captureDir, liveAddr string, sessionID uuid.UUID) (io.WriteCloser, error) {
	if captureDir != "" {
		if err := os.MkdirAll(captureDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sender: create capture directory")
		}
		path := filepath.Join(captureDir, sessionID.String()+".apc")
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, "sender: create capture file")
		}
		log.WithField("path", path).Infof("writing local capture")
		return f, nil
	}

	conn, err := net.Dial("tcp", liveAddr)
	if err != nil {
		return nil, errors.Wrap(err, "sender: dial live sink")
	}
	log.WithField("addr", liveAddr).Infof("streaming live capture")
	return conn, nil
}

// runSender repeatedly drains ob to sink until ob reports done (the
// capture has been stopped and the buffer drained). Canceling ctx marks
// ob done; the loop still drains what is left before returning.
func runSender(ctx context.Context, ob *buffer.OutboundBuffer, sink io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			ob.SetDone()
		default:
		}

		done, err := ob.Write(sink)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}
