package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

type loggerOptions struct {
	JSON    bool // JSON records instead of coloured text
	NoColor bool
	Verbose bool // debug level, including allocator records
	Quiet   bool // errors only
}

func newLogger(w io.Writer, opts loggerOptions) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.Quiet:
		level = slog.LevelError
	case opts.Verbose:
		level = slog.LevelDebug
	}

	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    opts.NoColor,
		TimeFormat: time.TimeOnly,
	}))
}
