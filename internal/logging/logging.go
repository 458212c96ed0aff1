// Package logging defines the structured event sink every isolation
// component logs through, so the core never writes to stdout/stderr
// directly. The CLI is the only place a concrete Sink is constructed.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Sink is the injected logging collaborator. Components take a Sink,
// never a concrete logger, so they stay testable with a no-op or
// recording implementation.
type Sink interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) Sink
}

// logrusSink adapts logrus to the Sink interface.
type logrusSink struct {
	entry *logrus.Entry
}

// NewLogrusSink builds a Sink writing structured lines to stderr.
// verbose enables trace-level logs per the --verbosity flag.
func NewLogrusSink(verbose bool) Sink {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.TraceLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &logrusSink{entry: logrus.NewEntry(l)}
}

func (s *logrusSink) Debugf(format string, args ...interface{}) { s.entry.Debugf(format, args...) }
func (s *logrusSink) Infof(format string, args ...interface{})  { s.entry.Infof(format, args...) }
func (s *logrusSink) Warnf(format string, args ...interface{})  { s.entry.Warnf(format, args...) }
func (s *logrusSink) Errorf(format string, args ...interface{}) { s.entry.Errorf(format, args...) }
func (s *logrusSink) Fatalf(format string, args ...interface{}) { s.entry.Fatalf(format, args...) }

func (s *logrusSink) WithField(key string, value interface{}) Sink {
	return &logrusSink{entry: s.entry.WithField(key, value)}
}

// Noop discards every event; used by components in tests that don't
// care about log output.
func Noop() Sink { return noopSink{} }

type noopSink struct{}

func (noopSink) Debugf(string, ...interface{}) {}
func (noopSink) Infof(string, ...interface{})  {}
func (noopSink) Warnf(string, ...interface{})  {}
func (noopSink) Errorf(string, ...interface{}) {}
func (noopSink) Fatalf(string, ...interface{}) {}
func (n noopSink) WithField(string, interface{}) Sink { return n }
