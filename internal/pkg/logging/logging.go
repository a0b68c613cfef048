package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a logger writing to w. level accepts anything slog.Level parses
// ("debug", "WARN", "info+2"); unknown levels fall back to info. format "text"
// selects the text handler, anything else JSON. Debug loggers record the
// source location.
func New(w io.Writer, level, format string, attrs ...slog.Attr) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}
	return slog.New(h)
}

// Setup installs a stdout logger as the slog default.
func Setup(level, format string, attrs ...slog.Attr) {
	slog.SetDefault(New(os.Stdout, level, format, attrs...))
}
