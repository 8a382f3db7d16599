// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Init installs the default logger. Verbose enables debug output, silent
// drops everything below error; the flags are mutually exclusive and
// silent wins.
func Init(verbose, silent bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if silent {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(newHandler(os.Stderr, level)))
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Second precision is plenty for a batch tool and keeps the
			// progress lines readable.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.DateTime))
			}
			return a
		},
	})
}
