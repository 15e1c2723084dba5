// Package breadcrumbs keeps the bounded trail of recent events that is
// attached to every captured report.
package breadcrumbs

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the number of breadcrumbs retained per client.
const DefaultCapacity = 100

// Breadcrumb types.
const (
	TypeDefault = "default"
	TypeHTTP    = "http"
	TypeLog     = "log"
)

// Breadcrumb is a single entry in the trail.
type Breadcrumb struct {
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     string         `json:"level,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Recorder accepts breadcrumbs. The error client and instrumentation hooks
// use it so they do not depend on each other.
type Recorder interface {
	RecordBreadcrumb(Breadcrumb)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Breadcrumb)

// RecordBreadcrumb implements Recorder.
func (f RecorderFunc) RecordBreadcrumb(b Breadcrumb) { f(b) }

// Buffer is a fixed-size ring of breadcrumbs. Once full, the oldest entry is
// overwritten. Safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	items []Breadcrumb
	next  int
	full  bool
	now   func() time.Time
}

// NewBuffer creates a ring holding at most capacity breadcrumbs. Values below
// one fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]Breadcrumb, capacity), now: time.Now}
}

// RecordBreadcrumb appends b, stamping it and defaulting its type when unset.
func (b *Buffer) RecordBreadcrumb(crumb Breadcrumb) {
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = b.now().UTC()
	}
	if crumb.Type == "" {
		crumb.Type = TypeDefault
	}
	crumb.Data = cloneData(crumb.Data)

	b.mu.Lock()
	b.items[b.next] = crumb
	b.next++
	if b.next == len(b.items) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
}

// Snapshot returns a copy of the retained breadcrumbs, oldest first.
func (b *Buffer) Snapshot() []Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Breadcrumb
	if b.full {
		out = make([]Breadcrumb, 0, len(b.items))
		out = append(out, b.items[b.next:]...)
		out = append(out, b.items[:b.next]...)
	} else {
		out = make([]Breadcrumb, b.next)
		copy(out, b.items[:b.next])
	}
	for i := range out {
		out[i].Data = cloneData(out[i].Data)
	}
	return out
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Len reports how many breadcrumbs are retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.items)
	}
	return b.next
}

// Clear drops every breadcrumb.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.items)
	b.next = 0
	b.full = false
}

// Levels used by breadcrumbs and reports.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelFatal   = "fatal"
)

// SlogLevel maps a slog level onto a report level name.
func SlogLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError+4:
		return LevelFatal
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarning
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
