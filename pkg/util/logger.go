package util

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func newLogger(env string, w io.Writer, colored bool) *slog.Logger {
	if env == "development" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			NoColor:    !colored,
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
