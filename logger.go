package auth

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// zlogger adapts a zerolog.Logger to Logger
type zlogger struct {
	log zerolog.Logger
}

// NewLogger returns a Logger writing structured JSON to w. An empty or
// unknown level falls back to info.
func NewLogger(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return &zlogger{
		log: zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "auth").Logger(),
	}
}

// NewLoggerFrom wraps an existing zerolog.Logger
func NewLoggerFrom(l zerolog.Logger) Logger {
	return &zlogger{log: l}
}

// NopLogger discards everything
func NopLogger() Logger {
	return &zlogger{log: zerolog.Nop()}
}

func (l *zlogger) Debug(msg string, args ...any) {
	l.emit(l.log.Debug(), msg, args)
}

func (l *zlogger) Info(msg string, args ...any) {
	l.emit(l.log.Info(), msg, args)
}

func (l *zlogger) Warn(msg string, args ...any) {
	l.emit(l.log.Warn(), msg, args)
}

func (l *zlogger) Error(msg string, args ...any) {
	l.emit(l.log.Error(), msg, args)
}

func (l *zlogger) emit(evt *zerolog.Event, msg string, args []any) {
	if evt == nil {
		return
	}
	evt.Fields(fields(args)).Msg(msg)
}

// fields turns alternating key/value args into a map. A trailing key with no
// value is recorded under "!BADKEY".
func fields(args []any) map[string]any {
	out := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if err, ok := args[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = args[i+1]
	}
	return out
}

type defLogger struct{}

func (defLogger) Debug(msg string, args ...any) {}
func (defLogger) Info(msg string, args ...any)  {}
func (defLogger) Warn(msg string, args ...any)  {}
func (defLogger) Error(msg string, args ...any) {}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
