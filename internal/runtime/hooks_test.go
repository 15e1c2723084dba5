package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	"github.com/drblury/faultline/internal/runtime/report"
)

func TestClientHooksMergeOrder(t *testing.T) {
	var calls []string
	a := ClientHooks{
		OnCapture: func(*report.Report) { calls = append(calls, "a.capture") },
		OnSent:    func(*report.Report, time.Duration) { calls = append(calls, "a.sent") },
	}
	b := ClientHooks{
		OnCapture:   func(*report.Report) { calls = append(calls, "b.capture") },
		OnSendError: func(*report.Report, error) { calls = append(calls, "b.error") },
	}

	merged := a.Merge(b)
	r := &report.Report{}
	merged.OnCapture(r)
	merged.OnSent(r, time.Millisecond)
	merged.OnSendError(r, errors.New("x"))

	assert.Equal(t, []string{"a.capture", "b.capture", "a.sent", "b.error"}, calls)
	assert.Nil(t, ClientHooks{}.Merge(ClientHooks{}).OnSent)
}

func TestLoggingHooks(t *testing.T) {
	logger := newRecordingLogger()
	hooks := LoggingHooks(logger)
	r := &report.Report{EventID: "abc", Level: breadcrumbs.LevelError}

	hooks.OnSent(r, 3*time.Millisecond)
	hooks.OnSendError(r, errors.New("down"))

	entries := logger.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "Error report delivered", entries[0].msg)
	assert.Equal(t, "abc", entries[0].fields["report_id"])
	assert.Equal(t, "Error report delivery failed", entries[1].msg)
	assert.EqualError(t, entries[1].err, "down")
}

func TestAlertingHooksFireForErrorsOnly(t *testing.T) {
	var alerted []string
	hooks := AlertingHooks(func(r *report.Report) { alerted = append(alerted, r.Level) })

	for _, level := range []string{breadcrumbs.LevelInfo, breadcrumbs.LevelWarning, breadcrumbs.LevelError, breadcrumbs.LevelFatal} {
		hooks.OnCapture(&report.Report{Level: level})
	}

	assert.Equal(t, []string{breadcrumbs.LevelError, breadcrumbs.LevelFatal}, alerted)
}
