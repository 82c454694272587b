// Package rtlog is the runtime's logging facade: the same leveled,
// wrap-able-output shape as gothird's internal/logio.Logger, but backed by
// github.com/rs/zerolog instead of a hand-rolled line buffer, so the
// components that log (worker ticks, program warnings and errors, errors
// reported by cmd/simbly) emit structured fields instead of flat text. The
// shell holds a Logger but does not log the commands it reads.
package rtlog

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Logger implements a leveled logging facility around a zerolog.Logger.
// Component code never touches zerolog directly; it calls Leveledf or
// With-style helpers the same way gothird's code calls logio.Logger.
type Logger struct {
	mu       sync.Mutex
	zl       zerolog.Logger
	exitCode int
}

// New constructs a Logger writing structured (non-console) JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// NewConsole constructs a Logger writing human-readable colorized lines to
// w, using zerolog's ConsoleWriter -- this is what cmd/simbly wires stderr
// through by default, mirroring gothird main.go's plain log.SetOutput(os.Stderr).
func NewConsole(w io.Writer) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return &Logger{zl: zerolog.New(cw).With().Timestamp().Logger()}
}

// SetOutput swaps the destination writer, preserving level/field config.
func (log *Logger) SetOutput(w io.Writer) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.zl = log.zl.Output(w)
}

// SetTrace toggles whether TRACE-level events (the scheduler's per-visit
// tracing, mirroring gothird main.go's "tron" trace toggle) are emitted, by
// setting the zerolog level to TraceLevel when enabled and to InfoLevel
// otherwise (which also drops DEBUG events).
func (log *Logger) SetTrace(enabled bool) {
	log.mu.Lock()
	defer log.mu.Unlock()
	if enabled {
		log.zl = log.zl.Level(zerolog.TraceLevel)
	} else {
		log.zl = log.zl.Level(zerolog.InfoLevel)
	}
}

// With returns a child Logger carrying an additional structured field,
// used to tag log lines with e.g. a worker id or program id.
func (log *Logger) With(key string, value interface{}) *Logger {
	log.mu.Lock()
	defer log.mu.Unlock()
	return &Logger{zl: log.zl.With().Interface(key, value).Logger()}
}

// Leveledf returns a printf-style function that logs at the named level,
// matching the signature gothird's tracer expects from VMOption's WithLogf.
func (log *Logger) Leveledf(level string) func(mess string, args ...interface{}) {
	return func(mess string, args ...interface{}) { log.Printf(level, mess, args...) }
}

// Printf logs a formatted message at the given level ("TRACE", "DUMP", ...).
func (log *Logger) Printf(level, mess string, args ...interface{}) {
	log.mu.Lock()
	defer log.mu.Unlock()
	ev := log.eventFor(level)
	if len(args) > 0 {
		ev.Msgf(mess, args...)
	} else {
		ev.Msg(mess)
	}
}

// Errorf logs at error level and marks the logger so ExitCode() is non-zero.
func (log *Logger) Errorf(mess string, args ...interface{}) {
	log.mu.Lock()
	defer log.mu.Unlock()
	ev := log.zl.Error()
	if len(args) > 0 {
		ev.Msgf(mess, args...)
	} else {
		ev.Msg(mess)
	}
	log.exitCode = 1
}

// ErrorIf logs a non-nil error at error level through Errorf.
func (log *Logger) ErrorIf(err error) {
	if err != nil {
		log.Errorf("%+v", err)
	}
}

// ExitCode returns a code suitable for os.Exit: 0 if no error was ever
// logged, non-zero otherwise.
func (log *Logger) ExitCode() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return log.exitCode
}

func (log *Logger) eventFor(level string) *zerolog.Event {
	switch level {
	case "ERROR":
		return log.zl.Error()
	case "WARN":
		return log.zl.Warn()
	case "TRACE":
		return log.zl.Trace()
	case "DEBUG":
		return log.zl.Debug()
	default:
		return log.zl.Info()
	}
}
