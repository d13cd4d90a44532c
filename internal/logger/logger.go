// Package logger provides structured logging setup for Relay.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Strob0t/Relay/internal/config"
)

// New creates a *slog.Logger from the given Logging config, plus a Closer
// that flushes buffered records when async mode is on.
//
// Format "json" and "text" force the handler; with no format set, a
// terminal on stdout gets text and everything else gets JSON. Every record
// carries a "service" attribute.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch {
	case cfg.Format == "text",
		cfg.Format == "" && term.IsTerminal(int(os.Stdout.Fd())):
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, cfg.AsyncBufferSize, cfg.AsyncWorkers)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
