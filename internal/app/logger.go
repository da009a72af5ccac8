package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances. The text
// format is colorized only when writing to a terminal stream.
func NewLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(outW, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    !isStdStream(outW),
		})
	}

	return slog.New(handler)
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr
}
