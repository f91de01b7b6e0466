package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxRecordBytes bounds a single formatted record (§4.13: "bounded at 4 KiB
// per message") before it reaches the mmap sink.
const maxRecordBytes = 4096

// mmapHandler is an slog.Handler that formats each record into a bounded
// buffer and hands it to an MmapSink, msync'ing on ERROR/FATAL so the last
// line survives a crash (§4.13). Implemented as an slog.Handler (rather
// than a bespoke logging API) so it composes with the rest of the ambient
// stack, grounded on the teacher's pkg/logger wrapping slog.Handler
// directly instead of inventing a parallel logging interface.
type mmapHandler struct {
	sink   *MmapSink
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newMmapHandler(sink *MmapSink, level slog.Leveler) *mmapHandler {
	return &mmapHandler{sink: sink, level: level}
}

func (h *mmapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *mmapHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.RFC3339Nano))
	buf.WriteByte(' ')
	buf.WriteString(r.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	line := buf.Bytes()
	if len(line) > maxRecordBytes {
		line = line[:maxRecordBytes]
	}
	h.sink.Write(line)

	if r.Level >= slog.LevelError {
		_ = h.sink.Msync()
	}
	return nil
}

func (h *mmapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	na := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	na = append(na, h.attrs...)
	na = append(na, attrs...)
	return &mmapHandler{sink: h.sink, level: h.level, attrs: na, groups: h.groups}
}

func (h *mmapHandler) WithGroup(name string) slog.Handler {
	ng := make([]string, 0, len(h.groups)+1)
	ng = append(ng, h.groups...)
	ng = append(ng, name)
	return &mmapHandler{sink: h.sink, level: h.level, attrs: h.attrs, groups: ng}
}

// fanoutHandler dispatches each record to every wrapped handler, so the
// terminal sink and the mmap sink both see every record independently
// (§4.13's "parallel terminal sink").
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
