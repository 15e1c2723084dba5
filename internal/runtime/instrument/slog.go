package instrument

import (
	"context"
	"log"
	"log/slog"
	"slices"
	"sync"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	"github.com/drblury/faultline/internal/runtime/logging"
)

var (
	logTarget target
	logOnce   sync.Once

	// The handler and log output in place before anyone called SetDefault.
	builtinHandler = slog.Default().Handler()
	builtinOutput  = log.Writer()
)

func installLogging(rec breadcrumbs.Recorder) (func(), error) {
	logOnce.Do(func() {
		next := forwardTarget(slog.Default().Handler())
		slog.SetDefault(slog.New(NewSlogHandler(next, &logTarget)))
	})
	return logTarget.attach(rec), nil
}

// forwardTarget returns the handler the wrapped default forwards to. The
// built-in handler writes through the log package, which SetDefault
// redirects back into slog, so it is replaced by a text handler on the
// original log output.
func forwardTarget(current slog.Handler) slog.Handler {
	if current == builtinHandler {
		return slog.NewTextHandler(builtinOutput, nil)
	}
	return current
}

// SlogHandler passes records on to next and records every record at info
// level or above as a breadcrumb whose category is the "logger" attribute.
type SlogHandler struct {
	next   slog.Handler
	rec    breadcrumbs.Recorder
	logger string
	attrs  map[string]any
	groups []string
}

// NewSlogHandler wraps next. A nil next only records breadcrumbs.
func NewSlogHandler(next slog.Handler, rec breadcrumbs.Recorder) *SlogHandler {
	return &SlogHandler{next: next, rec: rec, logger: "root"}
}

func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelInfo {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *SlogHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelInfo {
		h.rec.RecordBreadcrumb(h.breadcrumb(record))
	}
	if h.next == nil || !h.next.Enabled(ctx, record.Level) {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *SlogHandler) breadcrumb(record slog.Record) breadcrumbs.Breadcrumb {
	category := h.logger
	data := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for k, v := range h.attrs {
		data[k] = v
	}
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == logging.LoggerKey && len(h.groups) == 0 {
			category = a.Value.String()
			return true
		}
		data[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	if len(data) == 0 {
		data = nil
	}
	return breadcrumbs.Breadcrumb{
		Type:      breadcrumbs.TypeLog,
		Category:  category,
		Message:   record.Message,
		Level:     breadcrumbs.SlogLevel(record.Level),
		Timestamp: record.Time.UTC(),
		Data:      data,
	}
}

func (h *SlogHandler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, a := range attrs {
		if a.Key == logging.LoggerKey && len(h.groups) == 0 {
			clone.logger = a.Value.String()
			continue
		}
		clone.attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return clone
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return clone
}

func (h *SlogHandler) clone() *SlogHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &SlogHandler{
		next:   h.next,
		rec:    h.rec,
		logger: h.logger,
		attrs:  attrs,
		groups: slices.Clone(h.groups),
	}
}
