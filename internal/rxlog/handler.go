package rxlog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

// handler splits the log stream into a common stream and an error stream.
type handler struct {
	slog.Handler

	out *splitWriter
}

// splitWriter buffers one formatted record and flushes it to the writer
// that matches the record level.
type splitWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer

	writer    io.Writer
	errWriter io.Writer
}

func (w *splitWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// NewHandlerFromConfig creates a slog.Handler from conf.
func NewHandlerFromConfig(conf Config) slog.Handler {
	out := &splitWriter{
		writer:    parseToWriter(conf, conf.Output, os.Stdout),
		errWriter: parseToWriter(conf, conf.ErrorOutput, os.Stderr),
	}

	return &handler{
		Handler: formattedHandler(out, conf.Format, parseToSlogLevel(conf.Level), conf.Verbose, conf.DisableTime),
		out:     out,
	}
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()

	defer h.out.buf.Reset()

	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}

	target := h.out.writer
	if r.Level >= slog.LevelError {
		target = h.out.errWriter
	}
	_, err := h.out.buf.WriteTo(target)

	return err
}

func (h *handler) WithAttrs(as []slog.Attr) slog.Handler {
	return &handler{
		Handler: h.Handler.WithAttrs(as),
		out:     h.out,
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{
		Handler: h.Handler.WithGroup(name),
		out:     h.out,
	}
}

func formattedHandler(w io.Writer, format string, level slog.Level, verbose, disableTime bool) slog.Handler {
	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if disableTime && a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		return a
	}

	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource:   verbose,
			Level:       level,
			ReplaceAttr: replaceAttr,
		})
	}

	return tint.NewHandler(w, &tint.Options{
		AddSource:   verbose,
		Level:       level,
		ReplaceAttr: replaceAttr,
		NoColor:     true,
	})
}
