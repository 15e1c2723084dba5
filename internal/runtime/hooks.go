package runtime

import (
	"time"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	"github.com/drblury/faultline/internal/runtime/logging"
	"github.com/drblury/faultline/internal/runtime/report"
)

// ClientHooks defines callbacks around report delivery. All hooks are
// optional. Hooks run on the client's worker goroutine, except OnCapture,
// which runs on the capturing goroutine.
type ClientHooks struct {
	// OnCapture is called after the processors ran and before the report is
	// queued.
	OnCapture func(r *report.Report)

	// OnSent is called when the transport accepted the report.
	OnSent func(r *report.Report, took time.Duration)

	// OnSendError is called when the transport failed to deliver the report.
	OnSendError func(r *report.Report, err error)
}

// Merge combines two ClientHooks. The hooks from other are called after the
// hooks from h.
func (h ClientHooks) Merge(other ClientHooks) ClientHooks {
	return ClientHooks{
		OnCapture:   chain1(h.OnCapture, other.OnCapture),
		OnSent:      chain2(h.OnSent, other.OnSent),
		OnSendError: chain2(h.OnSendError, other.OnSendError),
	}
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) {
		a(x)
		b(x)
	}
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) {
		a(x, y)
		b(x, y)
	}
}

// LoggingHooks returns hooks that log delivery outcomes.
func LoggingHooks(logger logging.ServiceLogger) ClientHooks {
	return ClientHooks{
		OnSent: func(r *report.Report, took time.Duration) {
			logger.Debug("Error report delivered", logging.LogFields{
				"report_id":   r.EventID,
				"level":       r.Level,
				"duration_ms": took.Milliseconds(),
			})
		},
		OnSendError: func(r *report.Report, err error) {
			logger.Error("Error report delivery failed", err, logging.LogFields{
				"report_id": r.EventID,
				"level":     r.Level,
			})
		},
	}
}

// AlertingHooks returns hooks that call alert for every captured report at or
// above the error level.
func AlertingHooks(alert func(r *report.Report)) ClientHooks {
	return ClientHooks{
		OnCapture: func(r *report.Report) {
			switch r.Level {
			case breadcrumbs.LevelError, breadcrumbs.LevelFatal:
				alert(r)
			}
		},
	}
}
