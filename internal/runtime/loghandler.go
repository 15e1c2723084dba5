package runtime

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
)

// RootLogger is the breadcrumb category of records without a logger attribute.
const RootLogger = "root"

// ErrorAttr is the attribute key whose error value is captured as an exception.
const ErrorAttr = "error"

// LogHandlerOption customises a LogHandler.
type LogHandlerOption func(*logHandlerState)

// WithEventLevel sets the lowest level captured as a report. Default
// slog.LevelError.
func WithEventLevel(level slog.Level) LogHandlerOption {
	return func(s *logHandlerState) {
		s.eventLevel = level
	}
}

// WithBreadcrumbLevel sets the lowest level recorded as a breadcrumb.
// Default slog.LevelInfo.
func WithBreadcrumbLevel(level slog.Level) LogHandlerOption {
	return func(s *logHandlerState) {
		s.breadcrumbLevel = level
	}
}

type logHandlerState struct {
	client          atomic.Pointer[Client]
	eventLevel      slog.Level
	breadcrumbLevel slog.Level
}

// LogHandler is a slog.Handler that turns records into reports and
// breadcrumbs on its client. Handlers derived with WithAttrs or WithGroup
// share the client binding, so a Rebind reaches all of them.
type LogHandler struct {
	state  *logHandlerState
	logger string
	attrs  []slog.Attr
	groups []string
}

// NewLogHandler creates a standalone handler bound to client.
func NewLogHandler(client *Client, opts ...LogHandlerOption) *LogHandler {
	state := &logHandlerState{
		eventLevel:      slog.LevelError,
		breadcrumbLevel: slog.LevelInfo,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(state)
		}
	}
	state.client.Store(client)
	return &LogHandler{state: state, logger: RootLogger}
}

// Rebind implements Consumer.
func (h *LogHandler) Rebind(c *Client) {
	h.state.client.Store(c)
}

// Client returns the client the handler currently reports to.
func (h *LogHandler) Client() *Client {
	return h.state.client.Load()
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.state.breadcrumbLevel || level >= h.state.eventLevel
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	client := h.state.client.Load()
	if client == nil {
		return nil
	}

	logger := h.logger
	var captured error
	data := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Resolve().Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		if len(h.groups) == 0 {
			switch a.Key {
			case loggingpkg.LoggerKey:
				logger = a.Value.String()
				return true
			case ErrorAttr:
				if err, ok := a.Value.Resolve().Any().(error); ok {
					captured = err
					return true
				}
			}
		}
		data[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})

	if logger == configpkg.ClientLogger {
		return nil
	}

	level := breadcrumbs.SlogLevel(record.Level)
	if record.Level >= h.state.eventLevel {
		if client.cfg.IsIgnoredLogger(logger) {
			return nil
		}
		opts := []CaptureOption{WithLevel(level), WithLoggerName(logger)}
		for k, v := range data {
			opts = append(opts, WithExtra(k, v))
		}
		if captured != nil {
			opts = append(opts, WithExtra("log_message", record.Message))
			client.CaptureException(ctx, captured, opts...)
			return nil
		}
		client.CaptureMessage(ctx, record.Message, opts...)
		return nil
	}

	if record.Level < h.state.breadcrumbLevel {
		return nil
	}
	if captured != nil {
		data[ErrorAttr] = captured.Error()
	}
	if len(data) == 0 {
		data = nil
	}
	client.RecordBreadcrumb(breadcrumbs.Breadcrumb{
		Type:      breadcrumbs.TypeLog,
		Category:  logger,
		Message:   record.Message,
		Level:     level,
		Timestamp: record.Time,
		Data:      data,
	})
	return nil
}

func (h *LogHandler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, a := range attrs {
		if a.Key == loggingpkg.LoggerKey && len(h.groups) == 0 {
			clone.logger = a.Value.String()
			continue
		}
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return clone
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *LogHandler) clone() *LogHandler {
	return &LogHandler{
		state:  h.state,
		logger: h.logger,
		attrs:  slices.Clone(h.attrs),
		groups: slices.Clone(h.groups),
	}
}
