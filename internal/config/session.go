// Package config defines the capture session's runtime configuration and
// binds it to the CLI surface (spec.md §6.4), in the shape of the
// original daemon's SessionData (daemon/SessionData.cpp) pared down to
// the fields the core pipeline actually consults.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/ARM-software/gator-sub005/internal/buffer"
)

// Session holds the flags the core pipeline reads at startup. Everything
// else in the original SessionData (XML session parsing, Mali counter
// tables, target image lists) belongs to subsystems out of scope here.
type Session struct {
	BufferMode         buffer.BufferMode
	SampleRate         int
	Duration           time.Duration
	CallStackUnwinding bool
	CaptureCommand     []string
	CaptureUser        string
	SystemWide         bool
	StopGator          bool

	bufferModeFlag string
	sampleRateFlag string
}

// ErrInvalidBufferMode is returned when --buffer-mode names an unknown mode.
var ErrInvalidBufferMode = errors.New("config: invalid --buffer-mode")

// ErrInvalidSampleRate is returned when --sample-rate names an unknown rate.
var ErrInvalidSampleRate = errors.New("config: invalid --sample-rate")

// BindFlags registers the core-relevant flags on fs, à la the teacher's
// GlobalParams binding in cmd/system-probe/command.
func (s *Session) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.bufferModeFlag, "buffer-mode", "normal", "outbound buffer size class: streaming|normal|large")
	fs.StringVar(&s.sampleRateFlag, "sample-rate", "normal", "counter sample rate: high|normal|low|none")
	fs.DurationVar(&s.Duration, "duration", 0, "stop the capture after this long (0 = unlimited)")
	fs.BoolVar(&s.CallStackUnwinding, "call-stack-unwinding", false, "enable backtrace capture")
	fs.BoolVar(&s.StopGator, "stop-gator", false, "signal a running daemon to stop and exit")
	fs.StringSliceVar(&s.CaptureCommand, "capture-command", nil, "command (and args) to launch and profile")
	fs.StringVar(&s.CaptureUser, "capture-user", "", "run the capture command as this user")
	fs.BoolVar(&s.SystemWide, "system-wide", false, "profile all processes rather than a launched command")
}

// sampleRateValues mirrors SessionData::parseSessionXML's prime-just-above
// constants ("to reduce the chance of events firing at the same time").
var sampleRateValues = map[string]int{
	"high":   10007,
	"normal": 1009,
	"low":    101,
	"none":   0,
}

// Validate resolves the string-valued flags into their typed fields and
// rejects unrecognized values, matching the original's handleException on
// an invalid session XML value.
func (s *Session) Validate() error {
	switch s.bufferModeFlag {
	case "streaming":
		s.BufferMode = buffer.BufferModeStreaming
	case "normal":
		s.BufferMode = buffer.BufferModeNormal
	case "large":
		s.BufferMode = buffer.BufferModeLarge
	default:
		return errors.Wrapf(ErrInvalidBufferMode, "%q", s.bufferModeFlag)
	}

	rate, ok := sampleRateValues[s.sampleRateFlag]
	if !ok {
		return errors.Wrapf(ErrInvalidSampleRate, "%q", s.sampleRateFlag)
	}
	s.SampleRate = rate

	return nil
}
