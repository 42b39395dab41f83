// Package diag builds the *slog.Logger used throughout runar. It plays the
// same role the teacher's cmd/agent/main.go newLogger does — one constructor
// called once in main, threaded into every component — but targets a human
// reading a terminal rather than a log aggregator, so it renders single-line,
// <runar>-prefixed plain text instead of JSON.
package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// New builds a *slog.Logger that writes <runar>-prefixed plain-text lines to
// w. verbose selects slog.LevelDebug; otherwise slog.LevelInfo.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(newHandler(w, level))
}

// handler is a minimal slog.Handler rendering one line per record:
//
//	<runar> message key=value key=value
//
// matching spec's "no binary formats; no stable schema" diagnostics
// requirement. It does not buffer or batch; every Handle call issues one
// synchronous Write.
type handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newHandler(w io.Writer, level slog.Level) *handler {
	return &handler{mu: new(sync.Mutex), w: w, level: level}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b []byte
	b = append(b, "<runar> "...)
	b = append(b, r.Message...)

	for _, a := range h.attrs {
		b = appendAttr(b, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		b = appendAttr(b, h.groups, a)
		return true
	})
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

func appendAttr(b []byte, groups []string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return b
	}
	b = append(b, ' ')
	for _, g := range groups {
		b = append(b, g...)
		b = append(b, '.')
	}
	b = append(b, a.Key...)
	b = append(b, '=')
	b = append(b, fmt.Sprint(a.Value.Any())...)
	return b
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &n
}

func (h *handler) WithGroup(name string) slog.Handler {
	n := *h
	n.groups = append(append([]string(nil), h.groups...), name)
	return &n
}
