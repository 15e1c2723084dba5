package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	"github.com/drblury/faultline/internal/runtime/report"
)

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newClockedMiddleware(client *Client, next http.Handler, step time.Duration, opts ...MiddlewareOption) *Middleware {
	m := NewMiddleware(client, next, opts...)
	m.now = (&steppingClock{now: time.Unix(1700000000, 0), step: step}).Now
	return m
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddlewareReportsSlowResponseStart(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	metrics := NewReportMetrics(prometheus.NewRegistry())
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	m := newClockedMiddleware(client, next, 150*time.Millisecond,
		WithSoftRequestTimeout(100*time.Millisecond), WithMiddlewareMetrics(metrics))
	rec := serve(m, "/orders?id=1")
	flush(t, client)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	reports := sink.Reports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "Start_response over timeout: 100", r.Message)
	assert.Equal(t, breadcrumbs.LevelWarning, r.Level)
	assert.Equal(t, configpkg.RequestsLogger, r.Logger)
	assert.EqualValues(t, 150, r.Extra["elapsed_ms"])
	require.NotNil(t, r.Request)
	assert.Equal(t, http.MethodGet, r.Request.Method)
	assert.Equal(t, "id=1", r.Request.QueryString)
	assert.Equal(t, uint64(1), metrics.Snapshot().SoftTimeouts)
}

func TestMiddlewareFastResponseIsNotReported(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	m := newClockedMiddleware(client, next, 50*time.Millisecond, WithSoftRequestTimeout(100*time.Millisecond))
	serve(m, "/")
	flush(t, client)

	assert.Empty(t, sink.Reports())
}

func TestMiddlewareZeroThresholdAlwaysReports(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	m := NewMiddleware(client, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), WithSoftRequestTimeout(0))

	serve(m, "/")
	serve(m, "/")
	flush(t, client)

	reports := sink.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, "Start_response over timeout: 0", reports[0].Message)
}

func TestMiddlewareDisabledNeverReports(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	m := newClockedMiddleware(client, next, time.Hour, WithoutSoftRequestTimeout())
	serve(m, "/")
	flush(t, client)

	assert.Empty(t, sink.Reports())
	_, enabled := m.SoftTimeout()
	assert.False(t, enabled)
}

func TestMiddlewareReadsTimeoutFromEnvironment(t *testing.T) {
	cases := []struct {
		raw       string
		threshold time.Duration
		enabled   bool
	}{
		{raw: "", enabled: false},
		{raw: "abc", enabled: false},
		{raw: "-5", enabled: false},
		{raw: "0", threshold: 0, enabled: true},
		{raw: "250", threshold: 250 * time.Millisecond, enabled: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(configpkg.EnvSoftRequestTimeout, tc.raw)
			m := NewMiddleware(nil, http.NotFoundHandler())

			threshold, enabled := m.SoftTimeout()
			assert.Equal(t, tc.enabled, enabled)
			if tc.enabled {
				assert.Equal(t, tc.threshold, threshold)
			}
		})
	}
}

func TestMiddlewareTimeoutIsResolvedOnce(t *testing.T) {
	clearEnv(t)
	t.Setenv(configpkg.EnvSoftRequestTimeout, "100")
	m := NewMiddleware(nil, http.NotFoundHandler())

	t.Setenv(configpkg.EnvSoftRequestTimeout, "")
	threshold, enabled := m.SoftTimeout()
	assert.True(t, enabled)
	assert.Equal(t, 100*time.Millisecond, threshold)
}

func TestMiddlewarePassesResponseThrough(t *testing.T) {
	clearEnv(t)
	client, _, _ := newTestClient(t, configpkg.Options{})
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Order", "42")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
		require.NoError(t, http.NewResponseController(w).Flush())
	})

	rec := serve(NewMiddleware(client, next, WithoutSoftRequestTimeout()), "/")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Order"))
	assert.Equal(t, "created", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestMiddlewareCapturesAndRepanics(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	boom := errors.New("handler exploded")
	client.RecordBreadcrumb(breadcrumbs.Breadcrumb{Message: "before panic"})

	m := NewMiddleware(client, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(boom)
	}), WithoutSoftRequestTimeout())

	req := httptest.NewRequest(http.MethodPost, "/pay?token=abc", nil)
	req.Header.Set("Cookie", "session=1")
	assert.PanicsWithValue(t, boom, func() {
		m.ServeHTTP(httptest.NewRecorder(), req)
	})
	flush(t, client)

	reports := sink.Reports()
	require.Len(t, reports, 1)
	r := reports[0]
	require.NotNil(t, r.Exception)
	assert.Equal(t, "handler exploded", r.Exception.Value)
	assert.Equal(t, breadcrumbs.LevelFatal, r.Level)
	assert.Equal(t, "panic", r.Tags["mechanism"])
	require.Len(t, r.Breadcrumbs, 1)
	assert.Equal(t, Filtered, r.Request.Headers["Cookie"])
	assert.NotContains(t, r.Request.QueryString, "abc")
}

func TestMiddlewareWrapsNonErrorPanics(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	m := NewMiddleware(client, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("bad state")
	}), WithoutSoftRequestTimeout())

	assert.PanicsWithValue(t, "bad state", func() { serve(m, "/") })
	flush(t, client)

	require.Len(t, sink.Reports(), 1)
	assert.Equal(t, "panic: bad state", sink.Reports()[0].Exception.Value)
}

func TestMiddlewareDoesNotReportAbortHandler(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	m := NewMiddleware(client, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}), WithoutSoftRequestTimeout())

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { serve(m, "/") })
	flush(t, client)
	assert.Empty(t, sink.Reports())
}

func TestMiddlewareFollowsRebind(t *testing.T) {
	clearEnv(t)
	first, firstSink, _ := newTestClient(t, configpkg.Options{})
	second, secondSink, _ := newTestClient(t, configpkg.Options{})
	m := NewMiddleware(first, http.NotFoundHandler(), WithSoftRequestTimeout(0))

	m.Rebind(second)
	serve(m, "/")
	flush(t, second)

	assert.Empty(t, firstSink.Reports())
	assert.Len(t, secondSink.Reports(), 1)
}

func TestMiddlewareTracing(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	m := NewMiddleware(client, next, WithTracerProvider(tp), WithSoftRequestTimeout(0))
	serve(m, "/upstream")
	flush(t, client)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /upstream", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	require.Len(t, span.Events(), 1)
	assert.Equal(t, "soft_timeout", span.Events()[0].Name)

	reports := sink.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), reports[0].Tags[report.TagTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), reports[0].Tags[report.TagSpanID])
}
