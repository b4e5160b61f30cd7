// Package log is a thin wrapper around logrus giving every subsystem a
// consistent structured logger, mirroring the package-level Debugf/Infof
// style seen throughout the teacher's comp/ helpers and the original
// daemon's LOG_DEBUG/LOG_ERROR macros (daemon/Logging.cpp).
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the global log level (e.g. from a -v/--debug flag).
func SetLevel(level logrus.Level) { base.SetLevel(level) }

// WithField returns a contextual logger carrying one structured field,
// e.g. log.WithField("cpu", cpu).Debugf("attached ring").
func WithField(key string, value interface{}) *logrus.Entry {
	return base.WithField(key, value)
}

// WithFields returns a contextual logger carrying several structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return base.WithFields(fields)
}

func Debugf(format string, args ...interface{}) { base.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { base.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { base.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { base.Errorf(format, args...) }
