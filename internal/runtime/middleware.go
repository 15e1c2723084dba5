package runtime

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
)

// SoftTimeoutMessage is the report message for a slow response start. The
// verb is the threshold in milliseconds.
const SoftTimeoutMessage = "Start_response over timeout: %d"

const tracerName = "github.com/drblury/faultline"

// MiddlewareOption customises a Middleware.
type MiddlewareOption func(*Middleware)

// WithSoftRequestTimeout enables soft-timeout reporting with threshold d,
// ignoring FAULTLINE_SOFT_REQUEST_TIMEOUT.
func WithSoftRequestTimeout(d time.Duration) MiddlewareOption {
	return func(m *Middleware) {
		m.threshold = d
		m.enabled = d >= 0
		m.timeoutSet = true
	}
}

// WithoutSoftRequestTimeout disables soft-timeout reporting.
func WithoutSoftRequestTimeout() MiddlewareOption {
	return func(m *Middleware) {
		m.enabled = false
		m.timeoutSet = true
	}
}

// WithTracing starts an OpenTelemetry server span per request using the
// global tracer provider.
func WithTracing() MiddlewareOption {
	return func(m *Middleware) {
		m.tracer = otel.Tracer(tracerName)
	}
}

// WithTracerProvider is WithTracing with an explicit provider.
func WithTracerProvider(tp trace.TracerProvider) MiddlewareOption {
	return func(m *Middleware) {
		m.tracer = tp.Tracer(tracerName)
	}
}

// WithMiddlewareLogger sets the logger for per-request debug lines. They are
// written on the faultline.requests logger.
func WithMiddlewareLogger(logger loggingpkg.ServiceLogger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = loggingpkg.Named(logger, configpkg.RequestsLogger)
		}
	}
}

// WithMiddlewareMetrics counts soft-timeout breaches on metrics.
func WithMiddlewareMetrics(metrics *ReportMetrics) MiddlewareOption {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// Middleware reports panics and slow response starts of the wrapped handler
// to its client. It never delays or aborts a request.
type Middleware struct {
	client atomic.Pointer[Client]
	next   http.Handler

	threshold  time.Duration
	enabled    bool
	timeoutSet bool

	tracer  trace.Tracer
	logger  loggingpkg.ServiceLogger
	metrics *ReportMetrics
	now     func() time.Time
}

// NewMiddleware wraps next. Unless an option sets it, the soft timeout is
// read once from FAULTLINE_SOFT_REQUEST_TIMEOUT.
func NewMiddleware(client *Client, next http.Handler, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		next:   next,
		logger: loggingpkg.Named(loggingpkg.Discard(), configpkg.RequestsLogger),
		now:    time.Now,
	}
	m.client.Store(client)
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if !m.timeoutSet {
		m.threshold, m.enabled = configpkg.SoftRequestTimeout()
	}
	return m
}

// Rebind implements Consumer.
func (m *Middleware) Rebind(c *Client) {
	m.client.Store(c)
}

// Client returns the client the middleware currently reports to.
func (m *Middleware) Client() *Client {
	return m.client.Load()
}

// SoftTimeout returns the threshold and whether reporting is enabled.
func (m *Middleware) SoftTimeout() (time.Duration, bool) {
	return m.threshold, m.enabled
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := m.now()
	client := m.client.Load()

	var span trace.Span
	if m.tracer != nil {
		ctx, s := m.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		span = s
		defer span.End()
		r = r.WithContext(ctx)
	}

	rw := &responseWriter{ResponseWriter: w}
	rw.onStart = func() { m.responseStarted(client, r, span, start) }

	defer func() {
		if rec := recover(); rec != nil {
			if rec != http.ErrAbortHandler && client != nil {
				err := panicError(rec)
				if span != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "panic")
				}
				client.CaptureException(r.Context(), err,
					WithLevel(breadcrumbs.LevelFatal),
					WithRequest(r),
					WithTag("mechanism", "panic"),
					WithLoggerName(configpkg.RequestsLogger),
					WithStackSkip(2),
				)
			}
			panic(rec)
		}
	}()

	m.next.ServeHTTP(rw, r)
	rw.start()

	if span != nil && rw.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(rw.status))
	}
	m.logger.Debug("Handled request", loggingpkg.LogFields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      rw.statusCode(),
		"bytes":       rw.bytes,
		"duration_ms": m.now().Sub(start).Milliseconds(),
	})
}

func (m *Middleware) responseStarted(client *Client, r *http.Request, span trace.Span, start time.Time) {
	if !m.enabled || client == nil {
		return
	}
	elapsed := m.now().Sub(start)
	if elapsed < m.threshold {
		return
	}
	m.metrics.RecordSoftTimeout()
	if span != nil {
		span.AddEvent("soft_timeout", trace.WithAttributes(
			attribute.Int64("threshold_ms", m.threshold.Milliseconds()),
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
		))
	}
	client.CaptureMessage(r.Context(), fmt.Sprintf(SoftTimeoutMessage, m.threshold.Milliseconds()),
		WithLevel(breadcrumbs.LevelWarning),
		WithRequest(r),
		WithLoggerName(configpkg.RequestsLogger),
		WithExtra("elapsed_ms", elapsed.Milliseconds()),
	)
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// responseWriter observes the start of the response: the first WriteHeader,
// Write or Flush, or the handler returning without any of them.
type responseWriter struct {
	http.ResponseWriter
	once    sync.Once
	onStart func()
	status  int
	bytes   int
}

func (rw *responseWriter) start() {
	rw.once.Do(rw.onStart)
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.start()
	if rw.status == 0 && code >= http.StatusOK {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.start()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Flush() {
	rw.start()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.start()
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("faultline: response writer does not support hijacking")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}
