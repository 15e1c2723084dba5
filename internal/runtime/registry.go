package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/faultline/internal/runtime/config"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
)

// Ledger names used for the built-in consumers.
const (
	LogHandlerConsumer       = "log_handler"
	MiddlewareConsumerPrefix = "middleware:"
)

// retireTimeout bounds how long a replaced client may spend delivering its
// queued reports.
const retireTimeout = 30 * time.Second

// Consumer is anything holding a client that must follow reconfiguration.
// Rebind is called with the registry lock held and must not call back into
// the registry.
type Consumer interface {
	Rebind(*Client)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(*Client)

// Rebind implements Consumer.
func (f ConsumerFunc) Rebind(c *Client) { f(c) }

type ledgerEntry struct {
	name     string
	consumer Consumer
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithBaseOptions sets the options every client built by the registry starts
// from. ConfigureClient overrides are layered on top.
func WithBaseOptions(opts configpkg.Options) RegistryOption {
	return func(r *Registry) {
		r.base = opts
	}
}

// WithLogger sets the registry and client logger.
func WithLogger(logger loggingpkg.ServiceLogger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records report and reconfiguration statistics on m.
func WithMetrics(m *ReportMetrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClientOptions applies opts to every client the registry builds.
func WithClientOptions(opts ...ClientOption) RegistryOption {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// Registry owns the process-wide active client and the ledger of consumers
// that must be rebound when the client is replaced.
type Registry struct {
	mu     sync.Mutex
	active atomic.Pointer[Client]

	base       configpkg.Options
	logger     loggingpkg.ServiceLogger
	metrics    *ReportMetrics
	clientOpts []ClientOption

	ledger      []ledgerEntry
	logHandler  *LogHandler
	middlewares map[string]*Middleware

	retiring sync.WaitGroup
}

// NewRegistry creates a registry with no active client. Without WithMetrics
// the counters are kept on a private prometheus registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:      loggingpkg.NewSlogServiceLogger(slog.Default()),
		middlewares: make(map[string]*Middleware),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.metrics == nil {
		r.metrics = NewReportMetrics(prometheus.NewRegistry())
	}
	if err := r.metrics.Register(); err != nil {
		r.logger.Error("Failed to register report metrics", err, nil)
	}
	return r
}

// DefaultRegistry is the process-wide registry used by the package-level
// helpers. Its metrics are registered on prometheus.DefaultRegisterer.
var DefaultRegistry = NewRegistry(WithMetrics(NewReportMetrics(prometheus.DefaultRegisterer)))

// GetClient returns the active client, creating it from the base options and
// the environment on first use. Concurrent first calls build one client.
func (r *Registry) GetClient() (*Client, error) {
	if c := r.active.Load(); c != nil {
		return c, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientLocked()
}

func (r *Registry) clientLocked() (*Client, error) {
	if c := r.active.Load(); c != nil {
		return c, nil
	}
	c, err := r.build(configpkg.Options{})
	if err != nil {
		return nil, err
	}
	// Consumers survive Close and follow the replacement client.
	for _, entry := range r.ledger {
		entry.consumer.Rebind(c)
	}
	r.active.Store(c)
	return c, nil
}

// ConfigureClient always builds a new client from the base options with
// overrides applied, rebinds every ledger entry to it in registration order
// and then makes it the active client. The client is built before the
// registry lock is taken, so a slow transport dial does not stall other
// registry calls. The previous client delivers its queued reports and is
// closed in the background. On error nothing changes.
func (r *Registry) ConfigureClient(overrides configpkg.Options) (*Client, error) {
	c, err := r.build(overrides)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.ledger {
		entry.consumer.Rebind(c)
	}
	old := r.active.Swap(c)
	r.metrics.RecordReconfiguration()
	if old != nil {
		r.retire(old)
	}
	return c, nil
}

func (r *Registry) build(overrides configpkg.Options) (*Client, error) {
	opts := make([]ClientOption, 0, len(r.clientOpts)+2)
	opts = append(opts, WithClientLogger(r.logger), WithClientMetrics(r.metrics))
	opts = append(opts, r.clientOpts...)
	return NewClient(r.base.Merge(overrides), opts...)
}

func (r *Registry) retire(old *Client) {
	r.retiring.Add(1)
	go func() {
		defer r.retiring.Done()
		ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
		defer cancel()
		if err := old.Flush(ctx); err != nil {
			r.logger.Error("Replaced error reporting client did not flush in time", err, nil)
		}
		if err := old.Close(); err != nil {
			r.logger.Error("Failed to close replaced error reporting client", err, nil)
		}
	}()
}

// Register adds c to the ledger under name. It returns false, leaving the
// ledger unchanged, when name is empty, c is nil or name is taken.
func (r *Registry) Register(name string, c Consumer) bool {
	if name == "" || c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(name, c)
}

func (r *Registry) registerLocked(name string, c Consumer) bool {
	for _, entry := range r.ledger {
		if entry.name == name {
			return false
		}
	}
	r.ledger = append(r.ledger, ledgerEntry{name: name, consumer: c})
	return true
}

// Consumers returns the ledger names in registration order.
func (r *Registry) Consumers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.ledger))
	for i, entry := range r.ledger {
		names[i] = entry.name
	}
	return names
}

// LogHandler returns the registry's log handler, creating and registering it
// on first use.
func (r *Registry) LogHandler(opts ...LogHandlerOption) (*LogHandler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logHandler != nil {
		return r.logHandler, nil
	}
	c, err := r.clientLocked()
	if err != nil {
		return nil, err
	}
	h := NewLogHandler(c, opts...)
	r.registerLocked(LogHandlerConsumer, h)
	r.logHandler = h
	return h, nil
}

// Middleware returns the middleware registered under name, or wraps next in
// a new one bound to the active client and registers it. For an existing
// name, next and opts are ignored.
func (r *Registry) Middleware(name string, next http.Handler, opts ...MiddlewareOption) (*Middleware, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mw, ok := r.middlewares[name]; ok {
		return mw, nil
	}
	if next == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	c, err := r.clientLocked()
	if err != nil {
		return nil, err
	}
	base := []MiddlewareOption{
		WithMiddlewareLogger(r.logger),
		WithMiddlewareMetrics(r.metrics),
	}
	mw := NewMiddleware(c, next, append(base, opts...)...)
	r.registerLocked(MiddlewareConsumerPrefix+name, mw)
	r.middlewares[name] = mw
	return mw, nil
}

// Metrics returns the registry's metrics.
func (r *Registry) Metrics() *ReportMetrics {
	return r.metrics
}

// Close closes the active client and waits for replaced clients to finish.
// The registry builds a new client on the next GetClient.
func (r *Registry) Close() error {
	r.mu.Lock()
	old := r.active.Swap(nil)
	r.mu.Unlock()

	var err error
	if old != nil {
		err = old.Close()
	}
	r.retiring.Wait()
	return err
}
