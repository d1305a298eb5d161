// Package util provides low-level helpers shared by all other packages.
package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// levelVerbose sits between slog's Info and Debug.
const levelVerbose = slog.Level(-2)

var levelNames = map[slog.Level]string{
	slog.LevelError: "ERR",
	slog.LevelWarn:  "WRN",
	slog.LevelInfo:  "INF",
	levelVerbose:    "VRB",
	slog.LevelDebug: "DBG",
}

// Logger writes levelled messages to stderr through a tint handler,
// with optional timestamps and short level names.
type Logger struct {
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend HH:MM:SS.mmm timestamps
	attrs      []any
	sl         *slog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that appends key/value pairs to every line.
func (l *Logger) With(args ...any) *Logger {
	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		attrs:      append(append([]any(nil), l.attrs...), args...),
	}
	child.rebuild()
	return child
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.log(levelVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	if l == nil || !l.sl.Enabled(context.Background(), level) {
		return
	}
	l.sl.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *Logger) rebuild() {
	h := tint.NewHandler(l.output, &tint.Options{
		Level:      l.slogLevel(),
		TimeFormat: "15:04:05.000",
		NoColor:    !isTerminal(l.output),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if !l.timestamps {
					return slog.Attr{}
				}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					if s, ok := levelNames[lvl]; ok {
						return slog.String(a.Key, s)
					}
				}
			}
			return a
		},
	})
	l.sl = slog.New(h).With(l.attrs...)
}

func (l *Logger) slogLevel() slog.Level {
	switch {
	case l.level >= LogDebug:
		return slog.LevelDebug
	case l.level == LogVerbose:
		return levelVerbose
	case l.level == LogNormal:
		return slog.LevelInfo
	default:
		return slog.LevelError
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
