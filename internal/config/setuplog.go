package config

import (
	"strings"
	"sync"

	"github.com/ARM-software/gator-sub005/internal/log"
)

// SetupLog accumulates structured setup-log lines (capability gaps,
// config errors encountered while drivers and sockets come up), the
// equivalent of Logging::logSetup's mSetup accumulator
// (daemon/Logging.cpp): each entry is appended as it happens and also
// immediately logged, and String returns the whole accumulated log.
// Nothing in this build writes that string into the capture stream or
// its metadata; the lines reach the user through the log only.
type SetupLog struct {
	mu      sync.Mutex
	entries []string
}

// Append records one setup-log line, logging it immediately as well.
func (s *SetupLog) Append(line string) {
	s.mu.Lock()
	s.entries = append(s.entries, line)
	s.mu.Unlock()
	log.WithField("component", "setup").Warnf("%s", line)
}

// String joins every recorded line with "|", matching the original's
// on-wire delimiter.
func (s *SetupLog) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.entries, "|")
}

// Len reports how many lines have been recorded.
func (s *SetupLog) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
