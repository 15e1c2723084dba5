// Package sentry delivers reports straight to a Sentry-compatible collector
// through the sentry-go client. It is publish-only: there is nothing to tail.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	sentrygo "github.com/getsentry/sentry-go"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	"github.com/drblury/faultline/internal/runtime/report"
	"github.com/drblury/faultline/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "sentry"

// FlushTimeout bounds how long Close waits for buffered events.
var FlushTimeout = 5 * time.Second

// ClientFactory allows overriding the sentry client creation for testing.
var ClientFactory = func(opts sentrygo.ClientOptions) (*sentrygo.Client, error) {
	return sentrygo.NewClient(opts)
}

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("sentry: publisher closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SentryCapabilities)
}

// Build creates a sentry-go client for the configured DSN. Default
// integrations are disabled: faultline installs its own hooks.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	dsn := cfg.GetDSN()
	if dsn == "" {
		return transport.Transport{}, errors.New("sentry: DSN is required")
	}
	client, err := ClientFactory(sentrygo.ClientOptions{
		Dsn: dsn,
		Integrations: func([]sentrygo.Integration) []sentrygo.Integration {
			return nil
		},
	})
	if err != nil {
		return transport.Transport{}, fmt.Errorf("sentry: %w", err)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return transport.Transport{Publisher: &Publisher{client: client, logger: logger}}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SentryCapabilities
}

// Publisher is a message.Publisher that decodes report envelopes and
// captures them as sentry events. The topic is ignored.
type Publisher struct {
	client *sentrygo.Client
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// Publish implements message.Publisher.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	var errs []error
	for _, msg := range messages {
		r, _, err := report.Unmarshal(msg.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("sentry: decode %s: %w", msg.UUID, err))
			continue
		}
		id := p.client.CaptureEvent(Event(r), nil, nil)
		if id == nil {
			errs = append(errs, fmt.Errorf("sentry: event %s was dropped by the client", r.EventID))
			continue
		}
		p.logger.Debug("Captured report", watermill.LogFields{"event_id": string(*id), "level": r.Level})
	}
	return errors.Join(errs...)
}

// Close flushes buffered events.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if !p.client.Flush(FlushTimeout) {
		return fmt.Errorf("sentry: flush did not complete within %s", FlushTimeout)
	}
	return nil
}

// Event converts a report to a sentry event.
func Event(r *report.Report) *sentrygo.Event {
	evt := sentrygo.NewEvent()
	evt.EventID = sentrygo.EventID(r.EventID)
	evt.Timestamp = r.Timestamp
	evt.Level = sentrygo.Level(r.Level)
	evt.Logger = r.Logger
	evt.Message = r.Message
	evt.Release = r.Release
	evt.Environment = r.Environment
	evt.ServerName = r.ServerName
	for k, v := range r.Tags {
		evt.Tags[k] = v
	}
	for k, v := range r.Extra {
		evt.Extra[k] = v
	}
	if traceID := r.Tags[report.TagTraceID]; traceID != "" {
		evt.Contexts["trace"] = sentrygo.Context{
			"trace_id": traceID,
			"span_id":  r.Tags[report.TagSpanID],
		}
	}
	if r.Exception != nil {
		evt.Exception = []sentrygo.Exception{exception(r)}
	}
	for _, b := range r.Breadcrumbs {
		evt.Breadcrumbs = append(evt.Breadcrumbs, breadcrumb(b))
	}
	if r.Request != nil {
		evt.Request = &sentrygo.Request{
			URL:         r.Request.URL,
			Method:      r.Request.Method,
			QueryString: r.Request.QueryString,
			Headers:     r.Request.Headers,
		}
		if r.Request.RemoteAddr != "" {
			evt.Request.Env = map[string]string{"REMOTE_ADDR": r.Request.RemoteAddr}
		}
	}
	return evt
}

func exception(r *report.Report) sentrygo.Exception {
	exc := sentrygo.Exception{
		Type:      r.Exception.Type,
		Value:     r.Exception.Value,
		Mechanism: &sentrygo.Mechanism{Type: "generic"},
	}
	if r.Tags["mechanism"] == "panic" {
		exc.Mechanism.Type = "panic"
		exc.Mechanism.SetUnhandled()
	}
	if len(r.Exception.Stacktrace) > 0 {
		frames := make([]sentrygo.Frame, 0, len(r.Exception.Stacktrace))
		for _, f := range r.Exception.Stacktrace {
			frames = append(frames, sentrygo.Frame{
				Function: f.Function,
				Module:   f.Module,
				AbsPath:  f.File,
				Lineno:   f.Line,
				InApp:    true,
			})
		}
		exc.Stacktrace = &sentrygo.Stacktrace{Frames: frames}
	}
	return exc
}

func breadcrumb(b breadcrumbs.Breadcrumb) *sentrygo.Breadcrumb {
	return &sentrygo.Breadcrumb{
		Type:      b.Type,
		Category:  b.Category,
		Message:   b.Message,
		Data:      b.Data,
		Level:     sentrygo.Level(b.Level),
		Timestamp: b.Timestamp,
	}
}
