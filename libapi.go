package faultline

import (
	"context"
	"net/http"

	runtimepkg "github.com/drblury/faultline/internal/runtime"
	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	idspkg "github.com/drblury/faultline/internal/runtime/ids"
	"github.com/drblury/faultline/internal/runtime/instrument"
	"github.com/drblury/faultline/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
	"github.com/drblury/faultline/internal/runtime/report"
	"github.com/drblury/faultline/transport"
	_ "github.com/drblury/faultline/transport/transports"
)

type (
	Options         = configpkg.Options
	ClientConfig    = configpkg.ClientConfig
	DSN             = configpkg.DSN
	TransportConfig = configpkg.TransportConfig

	Client         = runtimepkg.Client
	ClientOption   = runtimepkg.ClientOption
	CaptureOption  = runtimepkg.CaptureOption
	ClientHooks    = runtimepkg.ClientHooks
	Processor      = runtimepkg.Processor
	Sink           = runtimepkg.Sink
	MemorySink     = runtimepkg.MemorySink
	PublisherSink  = runtimepkg.PublisherSink
	Registry       = runtimepkg.Registry
	RegistryOption = runtimepkg.RegistryOption
	Consumer       = runtimepkg.Consumer
	ConsumerFunc   = runtimepkg.ConsumerFunc
	Status         = runtimepkg.Status

	LogHandler         = runtimepkg.LogHandler
	LogHandlerOption   = runtimepkg.LogHandlerOption
	Middleware         = runtimepkg.Middleware
	MiddlewareOption   = runtimepkg.MiddlewareOption
	ReportMetrics      = runtimepkg.ReportMetrics
	MetricsSnapshot    = runtimepkg.MetricsSnapshot
	Report             = report.Report
	Breadcrumb         = breadcrumbs.Breadcrumb
	HookInstaller      = instrument.Installer
	ConfigurationError = errspkg.ConfigurationError
	TransportError     = errspkg.TransportError

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	TransportBuilder      = transport.Builder
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewRegistry        = runtimepkg.NewRegistry
	WithBaseOptions    = runtimepkg.WithBaseOptions
	WithLogger         = runtimepkg.WithLogger
	WithMetrics        = runtimepkg.WithMetrics
	WithClientOptions  = runtimepkg.WithClientOptions
	NewClient          = runtimepkg.NewClient
	NewLogHandler      = runtimepkg.NewLogHandler
	NewMiddleware      = runtimepkg.NewMiddleware
	NewReportMetrics   = runtimepkg.NewReportMetrics
	NewMemorySink      = runtimepkg.NewMemorySink
	NewPublisherSink   = runtimepkg.NewPublisherSink
	LogClientConfig    = runtimepkg.LogClientConfig
	DefaultProcessors  = runtimepkg.DefaultProcessors
	SanitizeProcessor  = runtimepkg.SanitizeProcessor
	LoggingHooks       = runtimepkg.LoggingHooks
	AlertingHooks      = runtimepkg.AlertingHooks
	ResolveConfig      = configpkg.Resolve
	ParseDSN           = configpkg.ParseDSN
	SoftRequestTimeout = configpkg.SoftRequestTimeout

	WithClientLogger      = runtimepkg.WithClientLogger
	WithClientMetrics     = runtimepkg.WithClientMetrics
	WithSink              = runtimepkg.WithSink
	WithTransportRegistry = runtimepkg.WithTransportRegistry
	WithHookRegistry      = runtimepkg.WithHookRegistry
	WithProcessors        = runtimepkg.WithProcessors
	WithClientHooks       = runtimepkg.WithClientHooks
	WithSendTimeout       = runtimepkg.WithSendTimeout

	WithLevel      = runtimepkg.WithLevel
	WithTag        = runtimepkg.WithTag
	WithExtra      = runtimepkg.WithExtra
	WithRequest    = runtimepkg.WithRequest
	WithLoggerName = runtimepkg.WithLoggerName
	WithStackSkip  = runtimepkg.WithStackSkip

	WithEventLevel      = runtimepkg.WithEventLevel
	WithBreadcrumbLevel = runtimepkg.WithBreadcrumbLevel

	WithSoftRequestTimeout    = runtimepkg.WithSoftRequestTimeout
	WithoutSoftRequestTimeout = runtimepkg.WithoutSoftRequestTimeout
	WithTracing               = runtimepkg.WithTracing
	WithTracerProvider        = runtimepkg.WithTracerProvider
	WithMiddlewareLogger      = runtimepkg.WithMiddlewareLogger
	WithMiddlewareMetrics     = runtimepkg.WithMiddlewareMetrics

	RegisterHook = instrument.Register

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.RegisterWithCapabilities

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	Fanout               = loggingpkg.Fanout

	NewReportID = idspkg.NewReportID

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrDSNRequired        = errspkg.ErrDSNRequired
	ErrInvalidDSN         = errspkg.ErrInvalidDSN
	ErrUnknownHook        = errspkg.ErrUnknownHook
	ErrUnknownTransport   = errspkg.ErrUnknownTransport
	ErrClientRequired     = errspkg.ErrClientRequired
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrConsumerRequired   = errspkg.ErrConsumerRequired
	ErrConsumerNameNeeded = errspkg.ErrConsumerNameNeeded
	ErrClientClosed       = errspkg.ErrClientClosed
	ErrQueueFull          = errspkg.ErrQueueFull
	ErrReportTooLarge     = errspkg.ErrReportTooLarge
	ErrSubscribeMissing   = errspkg.ErrSubscribeMissing
	IsConfigurationError  = errspkg.IsConfigurationError
)

// Report levels.
const (
	LevelDebug   = breadcrumbs.LevelDebug
	LevelInfo    = breadcrumbs.LevelInfo
	LevelWarning = breadcrumbs.LevelWarning
	LevelError   = breadcrumbs.LevelError
	LevelFatal   = breadcrumbs.LevelFatal
)

// DefaultRegistry is the process-wide client registry used by the
// package-level helpers.
var DefaultRegistry = runtimepkg.DefaultRegistry

// GetClient returns the process-wide client, creating it from the
// environment on first use.
func GetClient() (*Client, error) {
	return DefaultRegistry.GetClient()
}

// ConfigureClient replaces the process-wide client and rebinds every
// registered consumer to it.
func ConfigureClient(overrides Options) (*Client, error) {
	return DefaultRegistry.ConfigureClient(overrides)
}

// GetLogHandler returns the process-wide slog handler.
func GetLogHandler(opts ...LogHandlerOption) (*LogHandler, error) {
	return DefaultRegistry.LogHandler(opts...)
}

// GetMiddleware wraps next once per name on the process-wide registry.
func GetMiddleware(name string, next http.Handler, opts ...MiddlewareOption) (*Middleware, error) {
	return DefaultRegistry.Middleware(name, next, opts...)
}

// Register adds a consumer to the process-wide ledger.
func Register(name string, c Consumer) bool {
	return DefaultRegistry.Register(name, c)
}

// Consumers lists the process-wide ledger in registration order.
func Consumers() []string {
	return DefaultRegistry.Consumers()
}

// StatusHandler serves the process-wide registry status as JSON.
func StatusHandler() http.Handler {
	return DefaultRegistry.StatusHandler()
}

// CaptureException reports err on the process-wide client. It returns an
// empty id when err is nil or no client can be built.
func CaptureException(ctx context.Context, err error, opts ...CaptureOption) string {
	client, cerr := GetClient()
	if cerr != nil {
		return ""
	}
	return client.CaptureException(ctx, err, append([]CaptureOption{WithStackSkip(1)}, opts...)...)
}

// CaptureMessage reports msg on the process-wide client.
func CaptureMessage(ctx context.Context, msg string, opts ...CaptureOption) string {
	client, err := GetClient()
	if err != nil {
		return ""
	}
	return client.CaptureMessage(ctx, msg, opts...)
}

// Flush waits for the process-wide client's queued reports.
func Flush(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return err
	}
	return client.Flush(ctx)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
