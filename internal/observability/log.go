package observability

import (
	"io"
	"log/slog"
	"math"
	"strings"
)

var noopLogger *slog.Logger

// NoopLogger returns a disabled Logger
func NoopLogger() *slog.Logger {
	return noopLogger
}

// NewLogger returns a Logger writing to w.
// format is "json" or "text", level is one of debug, info, warn, error.
func NewLogger(w io.Writer, format string, level string) (*slog.Logger, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(level))
	if nil != err {
		return nil, wrapError(err, "invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var hdlr slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		hdlr = slog.NewTextHandler(w, opts)
	case "json":
		hdlr = slog.NewJSONHandler(w, opts)
	default:
		return nil, newError("invalid log format %q", format)
	}

	return slog.New(hdlr), nil
}

func init() {
	hdlr := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})
	noopLogger = slog.New(hdlr)
}
