package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FormatLine renders the log file line for a message logged at t.
func FormatLine(t time.Time, msg string) string {
	return fmt.Sprintf("[%s][%s]: %s", t.Format(dateLayout), t.Format("15:04:05"), msg)
}

// FileHandler is a slog.Handler writing one `[YYYY-MM-DD][HH:MM:SS]: msg`
// line per record, with attributes appended as key=value.
type FileHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	prefix string
	attrs  string
}

// NewFileHandler creates a FileHandler writing to w. A nil level means Info.
func NewFileHandler(w io.Writer, level slog.Leveler) *FileHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &FileHandler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *FileHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *FileHandler) Handle(_ context.Context, rec slog.Record) error {
	t := rec.Time
	if t.IsZero() {
		t = time.Now()
	}

	var b strings.Builder
	b.WriteString(FormatLine(t.Local(), rec.Message))
	if rec.Level >= slog.LevelWarn {
		b.WriteString(" level=")
		b.WriteString(rec.Level.String())
	}
	b.WriteString(h.attrs)
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.prefix, a)
	}
	clone := *h
	clone.attrs = b.String()
	return &clone
}

func (h *FileHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Entry is a record captured by a RingHandler.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Line renders the entry in the log file format.
func (e Entry) Line() string {
	var b strings.Builder
	b.WriteString(FormatLine(e.Time.Local(), e.Message))
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + quoteIfNeeded(e.Attrs[k]))
	}
	return b.String()
}

type ring struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
}

// RingHandler keeps the most recent records in memory for the Logs view and
// the /api/logs endpoint. Handlers derived with WithAttrs share the buffer.
type RingHandler struct {
	ring   *ring
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

// NewRingHandler keeps up to capacity records at or above level. A
// non-positive capacity falls back to 2000.
func NewRingHandler(capacity int, level slog.Leveler) *RingHandler {
	if capacity <= 0 {
		capacity = 2000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &RingHandler{
		ring:  &ring{capacity: capacity, entries: make([]Entry, 0, capacity)},
		level: level,
	}
}

func (h *RingHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *RingHandler) Handle(_ context.Context, rec slog.Record) error {
	entry := Entry{Time: rec.Time, Level: rec.Level, Message: rec.Message}
	if n := rec.NumAttrs() + len(h.attrs); n > 0 {
		entry.Attrs = make(map[string]string, n)
		for _, a := range h.attrs {
			flattenAttr(entry.Attrs, "", a)
		}
		rec.Attrs(func(a slog.Attr) bool {
			flattenAttr(entry.Attrs, h.prefix, a)
			return true
		})
	}

	r := h.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.capacity {
		copy(r.entries[0:], r.entries[1:])
		r.entries = r.entries[:r.capacity-1]
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// Entries returns a copy of the retained records, oldest first.
func (h *RingHandler) Entries() []Entry {
	h.ring.mu.RLock()
	defer h.ring.mu.RUnlock()
	cp := make([]Entry, len(h.ring.entries))
	copy(cp, h.ring.entries)
	return cp
}

// Clear drops every retained record.
func (h *RingHandler) Clear() {
	h.ring.mu.Lock()
	h.ring.entries = h.ring.entries[:0]
	h.ring.mu.Unlock()
}

// Tail returns at most n of the newest records.
func (h *RingHandler) Tail(n int) []Entry {
	all := h.Entries()
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}

func flattenAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			flattenAttr(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = a.Value.String()
}

// Fanout sends every record to each handler that accepts its level.
type Fanout struct {
	handlers []slog.Handler
}

// NewFanout combines handlers. Nil entries are skipped.
func NewFanout(handlers ...slog.Handler) *Fanout {
	hs := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &Fanout{handlers: hs}
}

func (f *Fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: hs}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: hs}
}
