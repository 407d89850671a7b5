// Package observability wires structured logging for the channel process.
package observability

import (
	"log/slog"
	"os"
)

// Common log field names, so the three poll loops stay greppable together.
const (
	LogFieldUserID  = "user_id"
	LogFieldConcern = "concern"
	LogFieldError   = "error"
)

// NewLogger builds the process logger: human-readable text in dev, JSON in
// prod. It is also installed as slog's default so library code that grabs
// slog.Default() lands in the same stream.
func NewLogger(dev bool) *slog.Logger {
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
