package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// logPanel keeps the most recent log lines for the logs view.
type logPanel struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	onChange func()
}

func newLogPanel(maxLines int) *logPanel {
	return &logPanel{maxLines: maxLines}
}

func (lp *logPanel) add(t time.Time, level slog.Level, msg string) {
	line := fmt.Sprintf("[gray]%s[-] [%s]%-5s[-] %s", t.Format("15:04:05"), colorForLevel(level), level, msg)

	lp.mu.Lock()
	lp.lines = append(lp.lines, line)
	if len(lp.lines) > lp.maxLines {
		lp.lines = lp.lines[len(lp.lines)-lp.maxLines:]
	}
	onChange := lp.onChange
	lp.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// Text returns the panel content in tview color tag markup.
func (lp *logPanel) Text() string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return strings.Join(lp.lines, "\n")
}

func colorForLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "red"
	case level >= slog.LevelWarn:
		return "yellow"
	case level >= slog.LevelInfo:
		return "white"
	default:
		return "gray"
	}
}

// panelHandler is a slog.Handler that writes to a logPanel.
type panelHandler struct {
	panel *logPanel
	level slog.Level
	attrs []slog.Attr
	group string
}

func newPanelHandler(panel *logPanel, level slog.Level) *panelHandler {
	return &panelHandler{panel: panel, level: level}
}

func (h *panelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *panelHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	h.panel.add(r.Time, r.Level, b.String())
	return nil
}

func (h *panelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *panelHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

// fanout sends each record to every handler that accepts it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
