package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// New builds the process logger: JSON in production, text elsewhere.
func New(w io.Writer, env, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch strings.ToLower(level) {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	case "", "info":
	default:
		slog.Default().Warn("invalid log level, using info", slog.String("value", level))
	}

	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				return a
			},
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
