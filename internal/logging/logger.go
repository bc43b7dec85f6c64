// Package logging provides structured logging for the CLI and the companion gateway.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog   zerolog.Logger
	mode   string // "cli" or "server"
	output io.Writer
}

// NewLogger creates a new logger for the specified mode.
// CLI mode writes human-readable lines to stdout (stderr is reserved for
// progress bars). Server mode writes JSON lines to stderr.
func NewLogger(mode string) *Logger {
	var output io.Writer
	if mode == "server" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return &Logger{
		zlog:   zerolog.New(output).With().Timestamp().Logger(),
		mode:   mode,
		output: output,
	}
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli")
}

// Nop returns a logger that discards everything. Used by tests and library callers
// that do not pass a logger.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), mode: "cli", output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Child returns a copy of the logger carrying the fields added by fn.
func (l *Logger) Child(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{
		zlog:   fn(l.zlog.With()).Logger(),
		mode:   l.mode,
		output: l.output,
	}
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	if l.mode == "server" {
		l.zlog = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	l.zlog = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// RetryLogger adapts Logger to retryablehttp.LeveledLogger.
type RetryLogger struct {
	l *Logger
}

// NewRetryLogger returns a retryablehttp-compatible view of l.
func NewRetryLogger(l *Logger) *RetryLogger {
	return &RetryLogger{l: l}
}

func (r *RetryLogger) Error(msg string, kv ...interface{}) { r.emit(r.l.Error(), msg, kv) }
func (r *RetryLogger) Info(msg string, kv ...interface{})  { r.emit(r.l.Debug(), msg, kv) }
func (r *RetryLogger) Debug(msg string, kv ...interface{}) { r.emit(r.l.Debug(), msg, kv) }
func (r *RetryLogger) Warn(msg string, kv ...interface{})  { r.emit(r.l.Warn(), msg, kv) }

func (r *RetryLogger) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		ev = ev.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	ev.Msg(msg)
}

// ParseLevel maps a flag value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
