// Package log configures the process-wide logger. Initialize should be
// called once at startup; the package-level helpers delegate to a shared
// logrus logger so library code never touches logging configuration.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Initialize applies the given level and output. Call it once at program
// start; tests and embedders that skip it get the stderr defaults.
func Initialize(level string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}

// Discard silences all output. Used by tests.
func Discard() {
	logger.SetOutput(io.Discard)
}

// L returns the underlying logger for callers that need fields or hooks.
func L() *logrus.Logger {
	return logger
}

// IsDebugEnabled reports whether debug logging is on.
func IsDebugEnabled() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

func Debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logger.Errorf(format, args...) }
