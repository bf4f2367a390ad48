package envmap

import (
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/gekko3d/envmap/envrt/rt/core"
)

// Logger is the logging interface used throughout the mapper.
type Logger = core.Logger

// DefaultLogger writes "[prefix] LEVEL: message" lines after the standard
// timestamp. Debug and info go to one writer, warnings and errors to another.
type DefaultLogger struct {
	debug atomic.Bool
	out   *log.Logger
	err   *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewWriterLogger(os.Stdout, os.Stderr, prefix, debug)
}

// NewWriterLogger logs debug and info messages to out and warnings and
// errors to errOut.
func NewWriterLogger(out, errOut io.Writer, prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds | log.Lmsgprefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	l := &DefaultLogger{
		out: log.New(out, prefix, flags),
		err: log.New(errOut, prefix, flags),
	}
	l.debug.Store(debug)
	return l
}

// NewLoggerFromConfig builds the default logger described by cfg.
func NewLoggerFromConfig(cfg LogConfig) *DefaultLogger {
	return NewDefaultLogger(cfg.Prefix, cfg.Debug)
}

func (l *DefaultLogger) DebugEnabled() bool    { return l.debug.Load() }
func (l *DefaultLogger) SetDebug(enabled bool) { l.debug.Store(enabled) }

func logf(dst *log.Logger, level, format string, args ...any) {
	dst.Printf(level+": "+format, args...)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.debug.Load() {
		logf(l.out, "DEBUG", format, args...)
	}
}

func (l *DefaultLogger) Infof(format string, args ...any)  { logf(l.out, "INFO", format, args...) }
func (l *DefaultLogger) Warnf(format string, args ...any)  { logf(l.err, "WARN", format, args...) }
func (l *DefaultLogger) Errorf(format string, args ...any) { logf(l.err, "ERROR", format, args...) }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger { return core.NewNopLogger() }
