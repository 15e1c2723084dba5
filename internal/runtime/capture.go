package runtime

import (
	"net/http"
)

type captureSettings struct {
	level   string
	logger  string
	tags    map[string]string
	extra   map[string]any
	request *http.Request
	skip    int
}

// CaptureOption customises a single captured report.
type CaptureOption func(*captureSettings)

func newCaptureSettings(level string, opts []CaptureOption) captureSettings {
	s := captureSettings{level: level}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithLevel overrides the report level ("debug", "info", "warning", "error"
// or "fatal").
func WithLevel(level string) CaptureOption {
	return func(s *captureSettings) {
		if level != "" {
			s.level = level
		}
	}
}

// WithTag adds a tag to the report.
func WithTag(key, value string) CaptureOption {
	return func(s *captureSettings) {
		if s.tags == nil {
			s.tags = make(map[string]string)
		}
		s.tags[key] = value
	}
}

// WithExtra attaches an arbitrary value to the report.
func WithExtra(key string, value any) CaptureOption {
	return func(s *captureSettings) {
		if s.extra == nil {
			s.extra = make(map[string]any)
		}
		s.extra[key] = value
	}
}

// WithRequest attaches the request being served. Sensitive headers and query
// parameters are filtered by the default processors.
func WithRequest(r *http.Request) CaptureOption {
	return func(s *captureSettings) {
		s.request = r
	}
}

// WithLoggerName records which logger produced the report.
func WithLoggerName(name string) CaptureOption {
	return func(s *captureSettings) {
		s.logger = name
	}
}

// WithStackSkip omits n additional frames from exception stack traces, for
// helpers that capture on behalf of their caller.
func WithStackSkip(n int) CaptureOption {
	return func(s *captureSettings) {
		s.skip += n
	}
}
