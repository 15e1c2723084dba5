// Package config resolves error reporting client configuration from explicit
// overrides layered over environment variables layered over defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	"github.com/drblury/faultline/internal/runtime/revision"
)

const (
	DefaultTransport = "sentry"
	DefaultTopic     = "error_reports"
	DefaultEncoding  = "json"
	DefaultQueueSize = 100

	// RequestsLogger and SlowQueriesLogger are internal loggers whose records
	// are too noisy to keep as breadcrumbs.
	RequestsLogger    = "faultline.requests"
	SlowQueriesLogger = "faultline.slowqueries"

	// ClientLogger carries the client's own delivery diagnostics. Its records
	// are never turned into reports.
	ClientLogger = "faultline.client"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options holds explicit overrides. A zero value in any field means "unset"
// and falls back to the environment; an explicitly empty value behaves the
// same as an omitted one.
type Options struct {
	DSN         string
	Release     string
	Environment string
	Site        string
	Name        string

	// HookLibraries names instrumentation hooks to install on the client.
	HookLibraries []string

	// IgnoredLoggers lists logger names whose records never become breadcrumbs.
	IgnoredLoggers []string

	// QueueSize bounds the number of reports waiting for delivery.
	QueueSize int

	Transport TransportConfig
}

// Merge returns o with every non-zero field of override applied on top.
func (o Options) Merge(override Options) Options {
	out := o
	setString(&out.DSN, override.DSN)
	setString(&out.Release, override.Release)
	setString(&out.Environment, override.Environment)
	setString(&out.Site, override.Site)
	setString(&out.Name, override.Name)
	if len(override.HookLibraries) > 0 {
		out.HookLibraries = append([]string(nil), override.HookLibraries...)
	}
	if len(override.IgnoredLoggers) > 0 {
		out.IgnoredLoggers = append([]string(nil), override.IgnoredLoggers...)
	}
	if override.QueueSize > 0 {
		out.QueueSize = override.QueueSize
	}
	out.Transport = out.Transport.merge(override.Transport)
	return out
}

// ClientConfig is the resolved, immutable client configuration.
type ClientConfig struct {
	DSN         DSN
	Release     string
	Environment string
	Site        string
	Name        string

	HookLibraries  []string
	IgnoredLoggers []string
	QueueSize      int `validate:"gte=1,lte=100000"`

	// DSNFromEnv is true when the DSN came from SENTRY_DSN rather than an override.
	DSNFromEnv bool

	Transport TransportConfig
}

// IsIgnoredLogger reports whether records from name must not become breadcrumbs.
func (c ClientConfig) IsIgnoredLogger(name string) bool {
	for _, ignored := range c.IgnoredLoggers {
		if ignored == name {
			return true
		}
	}
	return false
}

// Fields returns the configuration as structured log fields with the DSN
// redacted.
func (c ClientConfig) Fields() map[string]any {
	fields := map[string]any{
		"dsn":         c.DSN.Redacted(),
		"release":     c.Release,
		"environment": c.Environment,
		"site":        c.Site,
		"server_name": c.Name,
		"transport":   c.Transport.Name,
	}
	if len(c.HookLibraries) > 0 {
		fields["hook_libraries"] = strings.Join(c.HookLibraries, ",")
	}
	return fields
}

// Resolve builds a ClientConfig from opts, the environment and defaults.
func Resolve(opts Options) (ClientConfig, error) {
	env := newEnv()

	cfg := ClientConfig{
		Release:     firstNonEmpty(opts.Release, env.GetString(keyRelease)),
		Environment: firstNonEmpty(opts.Environment, env.GetString(keyEnvironment)),
		Site:        firstNonEmpty(opts.Site, env.GetString(keySite)),
		Name:        firstNonEmpty(opts.Name, env.GetString(keyName)),
		QueueSize:   opts.QueueSize,
	}
	if cfg.Release == "" {
		cfg.Release = revision.Get()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if len(opts.HookLibraries) > 0 {
		cfg.HookLibraries = append([]string(nil), opts.HookLibraries...)
	}
	if len(opts.IgnoredLoggers) > 0 {
		cfg.IgnoredLoggers = append([]string(nil), opts.IgnoredLoggers...)
	} else {
		cfg.IgnoredLoggers = []string{RequestsLogger, SlowQueriesLogger, ClientLogger}
	}

	rawDSN := strings.TrimSpace(opts.DSN)
	if rawDSN == "" {
		rawDSN = strings.TrimSpace(env.GetString(keyDSN))
		cfg.DSNFromEnv = rawDSN != ""
	}
	dsn, err := ParseDSN(rawDSN)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.DSN = dsn

	cfg.Transport = transportFromEnv(env).merge(opts.Transport)
	cfg.Transport.DSN = dsn

	if err := validate.Struct(cfg); err != nil {
		return ClientConfig{}, errspkg.NewConfigurationError("client", errors.New(describeValidation(err)))
	}
	if err := cfg.Transport.Validate(); err != nil {
		return ClientConfig{}, errspkg.NewConfigurationError("transport", err)
	}
	return cfg, nil
}

// ResolveTransport resolves only the report transport settings, for readers
// of a report stream that do not need a client. The DSN is optional here but
// must be well formed when SENTRY_DSN is set.
func ResolveTransport(override TransportConfig) (TransportConfig, error) {
	env := newEnv()
	tc := transportFromEnv(env).merge(override)
	if raw := strings.TrimSpace(env.GetString(keyDSN)); raw != "" {
		dsn, err := ParseDSN(raw)
		if err != nil {
			return TransportConfig{}, err
		}
		tc.DSN = dsn
	}
	if err := tc.Validate(); err != nil {
		return TransportConfig{}, errspkg.NewConfigurationError("transport", err)
	}
	return tc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
