package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options describes the process-wide logger. A nil Writer logs to stdout
type Options struct {
	Writer  io.Writer
	Service string
	Env     string
	Version string
	Level   slog.Level
}

// New constructs a JSON logger carrying the service identity on every
// record
func New(o Options) *slog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stdout
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.Level})
	return slog.New(h).With(
		slog.Group("service",
			slog.String("name", o.Service),
			slog.String("version", o.Version),
		),
		slog.String("env", o.Env),
	)
}

// ParseLevel maps a level name to its slog level. Unknown names are info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
