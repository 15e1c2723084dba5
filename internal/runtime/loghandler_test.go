package runtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	"github.com/drblury/faultline/internal/runtime/instrument"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
	"github.com/drblury/faultline/internal/runtime/report"
)

func TestLogHandlerSkipsIgnoredLoggers(t *testing.T) {
	clearEnv(t)
	client, _, _ := newTestClient(t, configpkg.Options{})
	logger := slog.New(NewLogHandler(client))

	for _, name := range []string{configpkg.SlowQueriesLogger, configpkg.RequestsLogger, "faultline"} {
		logger.With(loggingpkg.LoggerKey, name).Info(name)
	}

	crumbs := client.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "faultline", crumbs[0].Category)
	assert.Equal(t, "faultline", crumbs[0].Message)
	assert.Equal(t, breadcrumbs.TypeLog, crumbs[0].Type)
	assert.Equal(t, breadcrumbs.LevelInfo, crumbs[0].Level)
}

func TestLogHandlerBreadcrumbData(t *testing.T) {
	clearEnv(t)
	client, _, _ := newTestClient(t, configpkg.Options{})
	logger := slog.New(NewLogHandler(client))

	logger.Debug("too quiet")
	logger.WithGroup("db").Warn("slow", "table", "orders", loggingpkg.LoggerKey, "grouped")
	logger.Info("root record", "error", errors.New("soft failure"))

	crumbs := client.Breadcrumbs()
	require.Len(t, crumbs, 2)

	assert.Equal(t, RootLogger, crumbs[0].Category)
	assert.Equal(t, breadcrumbs.LevelWarning, crumbs[0].Level)
	assert.Equal(t, "orders", crumbs[0].Data["db.table"])
	assert.Equal(t, "grouped", crumbs[0].Data["db.logger"], "logger inside a group is plain data")

	assert.Equal(t, "soft failure", crumbs[1].Data[ErrorAttr])
}

func TestLogHandlerCapturesErrors(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	logger := slog.New(NewLogHandler(client)).With(loggingpkg.LoggerKey, "billing")

	logger.Info("charging card")
	logger.Error("charge failed", "error", errors.New("card declined"), "order_id", 42)
	logger.Error("no error attr", "order_id", 43)
	flush(t, client)

	reports := sink.Reports()
	require.Len(t, reports, 2)

	exc := reports[0]
	require.NotNil(t, exc.Exception)
	assert.Equal(t, "card declined", exc.Exception.Value)
	assert.Equal(t, breadcrumbs.LevelError, exc.Level)
	assert.Equal(t, "billing", exc.Logger)
	assert.Equal(t, "charge failed", exc.Extra["log_message"])
	assert.EqualValues(t, 42, exc.Extra["order_id"])
	require.Len(t, exc.Breadcrumbs, 1)
	assert.Equal(t, "charging card", exc.Breadcrumbs[0].Message)

	msg := reports[1]
	assert.Nil(t, msg.Exception)
	assert.Equal(t, "no error attr", msg.Message)
}

func TestLogHandlerIgnoredLoggerIsNotCaptured(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	logger := slog.New(NewLogHandler(client))

	logger.With(loggingpkg.LoggerKey, configpkg.RequestsLogger).Error("request failed")
	flush(t, client)
	assert.Empty(t, sink.Reports())
}

func TestLogHandlerLevels(t *testing.T) {
	clearEnv(t)
	client, sink, _ := newTestClient(t, configpkg.Options{})
	h := NewLogHandler(client, WithEventLevel(slog.LevelWarn), WithBreadcrumbLevel(slog.LevelDebug))
	logger := slog.New(h)

	assert.True(t, h.Enabled(t.Context(), slog.LevelDebug))
	logger.Debug("kept as breadcrumb")
	logger.Warn("reported")
	flush(t, client)

	require.Len(t, sink.Reports(), 1)
	assert.Equal(t, breadcrumbs.LevelWarning, sink.Reports()[0].Level)
	assert.Len(t, client.Breadcrumbs(), 1)
}

func TestLogHandlerRebindReachesDerivedHandlers(t *testing.T) {
	clearEnv(t)
	first, _, _ := newTestClient(t, configpkg.Options{})
	second, _, _ := newTestClient(t, configpkg.Options{DSN: otherTestDSN})

	h := NewLogHandler(first)
	derived := slog.New(h).With(loggingpkg.LoggerKey, "app")

	h.Rebind(second)
	derived.Info("after rebind")

	assert.Empty(t, first.Breadcrumbs())
	require.Len(t, second.Breadcrumbs(), 1)
	assert.Equal(t, "app", second.Breadcrumbs()[0].Category)
}

func TestLogHandlerFansOutWithTextOutput(t *testing.T) {
	clearEnv(t)
	client, _, _ := newTestClient(t, configpkg.Options{})
	var buf bytes.Buffer
	logger := slog.New(loggingpkg.Fanout(slog.NewTextHandler(&buf, nil), NewLogHandler(client)))

	logger.Info("both sides")

	assert.Contains(t, buf.String(), "both sides")
	assert.Len(t, client.Breadcrumbs(), 1)
}

type failingSink struct{ sends atomic.Int32 }

func (s *failingSink) Send(context.Context, *report.Report) error {
	s.sends.Add(1)
	return errors.New("relay down")
}

func (s *failingSink) Close() error { return nil }

func TestClientDiagnosticsStayOutOfItsLogHandler(t *testing.T) {
	clearEnv(t)
	cases := map[string][]string{
		"default ignore list": nil,
		"custom ignore list":  {"noisy"},
	}
	for name, ignored := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewLogHandler(nil)
			var out bytes.Buffer
			logger := loggingpkg.NewSlogServiceLogger(slog.New(loggingpkg.Fanout(slog.NewTextHandler(&out, nil), handler)))
			sink := &failingSink{}
			client, err := NewClient(
				configpkg.Options{DSN: testDSN, QueueSize: 1, IgnoredLoggers: ignored},
				WithSink(sink), WithClientLogger(logger), WithHookRegistry(instrument.NewRegistry()),
			)
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })
			handler.Rebind(client)

			require.NotEmpty(t, client.CaptureMessage(context.Background(), "relay is down"))
			flush(t, client)

			assert.Equal(t, int32(1), sink.sends.Load())
			assert.Contains(t, out.String(), "Failed to deliver error report")
			assert.Contains(t, out.String(), "logger="+configpkg.ClientLogger)
			assert.Empty(t, client.Breadcrumbs())
		})
	}
}
