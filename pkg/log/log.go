package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Fields are key/value pairs attached to every entry of a derived logger.
type Fields = logrus.Fields

// Logger defines the logging interface used throughout the unwrapper.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	// WithFields returns a logger that attaches fields to every entry.
	WithFields(fields Fields) Logger
}

// DefaultLogger is the logrus backed Logger. Loggers derived through
// WithFields share level, output and format with their parent.
type DefaultLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefaultLogger creates a text logger at info level writing to stderr.
func NewDefaultLogger() *DefaultLogger {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	base.SetLevel(logrus.InfoLevel)

	return &DefaultLogger{
		base:  base,
		entry: logrus.NewEntry(base),
	}
}

// NewLoggerWithLevel creates a logger at level, falling back to info.
func NewLoggerWithLevel(level string) *DefaultLogger {
	l := NewDefaultLogger()
	l.SetLevel(level)
	return l
}

// NewDiscardLogger creates a logger that drops every message.
func NewDiscardLogger() *DefaultLogger {
	l := NewDefaultLogger()
	l.base.SetOutput(io.Discard)
	return l
}

func (l *DefaultLogger) Debug(args ...interface{}) {
	l.entry.Debug(args...)
}

func (l *DefaultLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *DefaultLogger) Info(args ...interface{}) {
	l.entry.Info(args...)
}

func (l *DefaultLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *DefaultLogger) Warn(args ...interface{}) {
	l.entry.Warn(args...)
}

func (l *DefaultLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *DefaultLogger) Error(args ...interface{}) {
	l.entry.Error(args...)
}

func (l *DefaultLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// WithFields implements Logger.WithFields
func (l *DefaultLogger) WithFields(fields Fields) Logger {
	return &DefaultLogger{
		base:  l.base,
		entry: l.entry.WithFields(fields),
	}
}

// SetLevel sets the log level; unknown levels select info.
func (l *DefaultLogger) SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.base.SetLevel(lvl)
}

// Level returns the current level name.
func (l *DefaultLogger) Level() string {
	return l.base.GetLevel().String()
}

// SetOutput redirects log output.
func (l *DefaultLogger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// SetFormat switches between "text" and "json" output.
func (l *DefaultLogger) SetFormat(format string) error {
	switch format {
	case "", "text":
		l.base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}
