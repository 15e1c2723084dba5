package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	idspkg "github.com/drblury/faultline/internal/runtime/ids"
	"github.com/drblury/faultline/internal/runtime/instrument"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
	"github.com/drblury/faultline/internal/runtime/report"
	"github.com/drblury/faultline/transport"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// ClientOption customises how a client is built.
type ClientOption func(*clientSettings)

type clientSettings struct {
	logger      loggingpkg.ServiceLogger
	metrics     *ReportMetrics
	sink        Sink
	transports  *transport.Registry
	hooks       *instrument.Registry
	processors  []Processor
	clientHooks ClientHooks
	sendTimeout time.Duration
	now         func() time.Time
}

// WithClientLogger sets the logger used for client diagnostics.
func WithClientLogger(logger loggingpkg.ServiceLogger) ClientOption {
	return func(s *clientSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClientMetrics records delivery statistics on m.
func WithClientMetrics(m *ReportMetrics) ClientOption {
	return func(s *clientSettings) {
		s.metrics = m
	}
}

// WithSink delivers reports to sink instead of building a transport. The
// client does not close a sink it was given.
func WithSink(sink Sink) ClientOption {
	return func(s *clientSettings) {
		s.sink = sink
	}
}

// WithTransportRegistry builds the report transport from reg instead of
// transport.DefaultRegistry.
func WithTransportRegistry(reg *transport.Registry) ClientOption {
	return func(s *clientSettings) {
		s.transports = reg
	}
}

// WithHookRegistry installs hook libraries from reg instead of
// instrument.DefaultRegistry.
func WithHookRegistry(reg *instrument.Registry) ClientOption {
	return func(s *clientSettings) {
		s.hooks = reg
	}
}

// WithProcessors replaces the default processor chain.
func WithProcessors(processors ...Processor) ClientOption {
	return func(s *clientSettings) {
		s.processors = processors
	}
}

// WithClientHooks adds delivery callbacks. Repeated use merges the hooks.
func WithClientHooks(h ClientHooks) ClientOption {
	return func(s *clientSettings) {
		s.clientHooks = s.clientHooks.Merge(h)
	}
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// Client captures errors and messages and delivers them asynchronously
// through a bounded queue drained by a single worker goroutine.
type Client struct {
	cfg         configpkg.ClientConfig
	logger      loggingpkg.ServiceLogger
	metrics     *ReportMetrics
	sink        Sink
	ownsSink    bool
	transport   string
	processors  []Processor
	hooks       ClientHooks
	sendTimeout time.Duration
	now         func() time.Time

	crumbs    *breadcrumbs.Buffer
	uninstall func()

	queue chan *report.Report
	done  chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight int
	idle     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewClient resolves opts against the environment and builds a standalone
// client. It never touches a Registry.
func NewClient(opts configpkg.Options, clientOpts ...ClientOption) (*Client, error) {
	cfg, err := configpkg.Resolve(opts)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, clientOpts...)
}

func newClient(cfg configpkg.ClientConfig, clientOpts ...ClientOption) (*Client, error) {
	s := clientSettings{
		transports:  transport.DefaultRegistry,
		hooks:       instrument.DefaultRegistry,
		processors:  DefaultProcessors(),
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
	}
	for _, opt := range clientOpts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = loggingpkg.NewSlogServiceLogger(slog.Default())
	}
	s.logger = loggingpkg.Named(s.logger, configpkg.ClientLogger)
	if s.transports == nil {
		s.transports = transport.DefaultRegistry
	}
	if s.hooks == nil {
		s.hooks = instrument.DefaultRegistry
	}

	c := &Client{
		cfg:         cfg,
		logger:      s.logger,
		metrics:     s.metrics,
		processors:  s.processors,
		hooks:       s.clientHooks,
		sendTimeout: s.sendTimeout,
		now:         s.now,
		crumbs:      breadcrumbs.NewBuffer(breadcrumbs.DefaultCapacity),
		queue:       make(chan *report.Report, cfg.QueueSize),
		done:        make(chan struct{}),
		idle:        closedChan(),
	}

	if s.sink != nil {
		c.sink = s.sink
		c.transport = "custom"
	} else {
		sink, err := buildSink(cfg, s.transports, s.logger)
		if err != nil {
			return nil, err
		}
		c.sink = sink
		c.ownsSink = true
		c.transport = cfg.Transport.Name
	}

	uninstall, err := s.hooks.Install(cfg.HookLibraries, c)
	if err != nil {
		if c.ownsSink {
			_ = c.sink.Close()
		}
		return nil, err
	}
	c.uninstall = uninstall

	go c.run()

	LogClientConfig(c.logger, cfg, cfg.DSNFromEnv)
	return c, nil
}

func buildSink(cfg configpkg.ClientConfig, reg *transport.Registry, logger loggingpkg.ServiceLogger) (Sink, error) {
	name := cfg.Transport.Name
	if !reg.Has(name) {
		return nil, errspkg.NewConfigurationError("transport", fmt.Errorf("%w: %q (registered: %s)", errspkg.ErrUnknownTransport, name, strings.Join(reg.Names(), ", ")))
	}
	tc := cfg.Transport
	tr, err := reg.Build(transport.PublishOnly(context.Background()), &tc, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transport: %w", name, err)
	}
	var extra []io.Closer
	if tr.Subscriber != nil && any(tr.Subscriber) != any(tr.Publisher) {
		extra = append(extra, tr.Subscriber)
	}
	sink, err := NewPublisherSink(tr.Publisher, cfg.Transport.Topic, cfg.Transport.Encoding, extra...)
	if err != nil {
		if tr.Publisher != nil {
			_ = tr.Publisher.Close()
		}
		for _, c := range extra {
			_ = c.Close()
		}
		return nil, err
	}
	return sink.WithCapabilities(reg.GetCapabilities(name)), nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// LogClientConfig writes the one log entry every client construction emits.
// The DSN is always redacted.
func LogClientConfig(logger loggingpkg.ServiceLogger, cfg configpkg.ClientConfig, fromEnv bool) {
	msg := "configured error reporting client"
	if fromEnv {
		msg += " (from SENTRY_DSN)"
	}
	logger.Info(msg, loggingpkg.LogFields(cfg.Fields()))
}

// Config returns the resolved configuration the client was built with.
func (c *Client) Config() configpkg.ClientConfig {
	return c.cfg
}

// RecordBreadcrumb adds b to the client's trail. Log breadcrumbs from an
// ignored logger are discarded.
func (c *Client) RecordBreadcrumb(b breadcrumbs.Breadcrumb) {
	if b.Type == breadcrumbs.TypeLog && c.cfg.IsIgnoredLogger(b.Category) {
		return
	}
	c.crumbs.RecordBreadcrumb(b)
}

// Breadcrumbs returns the retained breadcrumbs, oldest first.
func (c *Client) Breadcrumbs() []breadcrumbs.Breadcrumb {
	return c.crumbs.Snapshot()
}

// ClearBreadcrumbs drops the trail.
func (c *Client) ClearBreadcrumbs() {
	c.crumbs.Clear()
}

// CaptureException queues a report for err and returns its id. A nil error
// or a dropped report yields "".
func (c *Client) CaptureException(ctx context.Context, err error, opts ...CaptureOption) string {
	if err == nil {
		return ""
	}
	s := newCaptureSettings(breadcrumbs.LevelError, opts)
	r := c.newReport(ctx, s)
	r.Exception = report.NewException(err, 1+s.skip)
	return c.enqueue(r, "exception")
}

// CaptureMessage queues a message report and returns its id, or "" when the
// report was dropped.
func (c *Client) CaptureMessage(ctx context.Context, msg string, opts ...CaptureOption) string {
	s := newCaptureSettings(breadcrumbs.LevelInfo, opts)
	r := c.newReport(ctx, s)
	r.Message = msg
	return c.enqueue(r, "message")
}

func (c *Client) newReport(ctx context.Context, s captureSettings) *report.Report {
	r := &report.Report{
		EventID:     idspkg.NewReportID(),
		Timestamp:   c.now().UTC(),
		Level:       s.level,
		Logger:      s.logger,
		Release:     c.cfg.Release,
		Environment: c.cfg.Environment,
		ServerName:  c.cfg.Name,
		Breadcrumbs: c.crumbs.Snapshot(),
		Request:     report.RequestFromHTTP(s.request),
	}
	r.SetTag(report.TagSite, c.cfg.Site)
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.SetTag(report.TagTraceID, sc.TraceID().String())
			r.SetTag(report.TagSpanID, sc.SpanID().String())
		}
	}
	for k, v := range s.tags {
		r.SetTag(k, v)
	}
	if len(s.extra) > 0 {
		r.Extra = make(map[string]any, len(s.extra))
		for k, v := range s.extra {
			r.Extra[k] = v
		}
	}
	return r
}

func (c *Client) enqueue(r *report.Report, kind string) string {
	if r = runProcessors(r, c.processors); r == nil {
		c.metrics.RecordDropped(DropFiltered)
		return ""
	}
	if c.hooks.OnCapture != nil {
		c.hooks.OnCapture(r)
	}
	c.metrics.RecordCaptured(kind, r.Level)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.drop(r, DropClosed, errspkg.ErrClientClosed)
		return ""
	}
	select {
	case c.queue <- r:
		if c.inflight == 0 {
			c.idle = make(chan struct{})
		}
		c.inflight++
		c.mu.Unlock()
		return r.EventID
	default:
		c.mu.Unlock()
		c.drop(r, DropQueueFull, errspkg.ErrQueueFull)
		return ""
	}
}

func (c *Client) drop(r *report.Report, reason string, err error) {
	c.metrics.RecordDropped(reason)
	c.logger.Error("Dropped error report", err, loggingpkg.LogFields{
		"report_id": r.EventID,
		"reason":    reason,
	})
}

func (c *Client) run() {
	defer close(c.done)
	for r := range c.queue {
		c.deliver(r)

		c.mu.Lock()
		c.inflight--
		if c.inflight == 0 {
			close(c.idle)
		}
		c.mu.Unlock()
	}
}

func (c *Client) deliver(r *report.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	start := c.now()
	err := c.sink.Send(ctx, r)
	took := c.now().Sub(start)
	if err != nil {
		err = &errspkg.TransportError{Transport: c.transport, ReportID: r.EventID, Err: err}
		c.metrics.RecordFailed(took)
		c.logger.Error("Failed to deliver error report", err, loggingpkg.LogFields{
			"report_id": r.EventID,
			"transport": c.transport,
		})
		if c.hooks.OnSendError != nil {
			c.hooks.OnSendError(r, err)
		}
		return
	}
	c.metrics.RecordSent(took)
	if c.hooks.OnSent != nil {
		c.hooks.OnSent(r, took)
	}
}

// Flush blocks until every queued report has been handed to the transport or
// ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting reports, delivers the queued ones, removes the
// client's instrumentation hooks and closes the transport the client built.
// Subsequent calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()

		<-c.done
		if c.uninstall != nil {
			c.uninstall()
		}
		if c.ownsSink {
			c.closeErr = c.sink.Close()
		}
	})
	return c.closeErr
}
