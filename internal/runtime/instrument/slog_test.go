package instrument

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
)

func TestSlogHandlerRecordsBreadcrumbs(t *testing.T) {
	var out bytes.Buffer
	buf := breadcrumbs.NewBuffer(10)
	logger := slog.New(NewSlogHandler(slog.NewTextHandler(&out, nil), buf))

	logger.Info("plain", "k", "v")
	logger.With("logger", "db").Warn("slow", "ms", 120)
	logger.Debug("hidden")

	crumbs := buf.Snapshot()
	require.Len(t, crumbs, 2)
	assert.Equal(t, "root", crumbs[0].Category)
	assert.Equal(t, "plain", crumbs[0].Message)
	assert.Equal(t, breadcrumbs.TypeLog, crumbs[0].Type)
	assert.Equal(t, "v", crumbs[0].Data["k"])
	assert.Equal(t, "db", crumbs[1].Category)
	assert.Equal(t, breadcrumbs.LevelWarning, crumbs[1].Level)
	assert.Equal(t, int64(120), crumbs[1].Data["ms"])

	assert.Contains(t, out.String(), "msg=plain")
	assert.Contains(t, out.String(), "logger=db")
	assert.NotContains(t, out.String(), "hidden")
}

func TestSlogHandlerLoggerAttrOnRecord(t *testing.T) {
	buf := breadcrumbs.NewBuffer(10)
	logger := slog.New(NewSlogHandler(nil, buf))

	logger.Info("query", "logger", "faultline.slowqueries")

	crumbs := buf.Snapshot()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "faultline.slowqueries", crumbs[0].Category)
	assert.Nil(t, crumbs[0].Data)
}

func TestSlogHandlerGroupsQualifyKeys(t *testing.T) {
	buf := breadcrumbs.NewBuffer(10)
	logger := slog.New(NewSlogHandler(nil, buf)).WithGroup("req").With("id", 7)

	logger.Info("handled", "status", 200)

	crumbs := buf.Snapshot()
	require.Len(t, crumbs, 1)
	assert.Equal(t, int64(7), crumbs[0].Data["req.id"])
	assert.Equal(t, int64(200), crumbs[0].Data["req.status"])
}

func TestSlogHandlerEnabled(t *testing.T) {
	h := NewSlogHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}), breadcrumbs.NewBuffer(1))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestForwardTargetReplacesBuiltinHandler(t *testing.T) {
	next := forwardTarget(builtinHandler)
	_, ok := next.(*slog.TextHandler)
	assert.True(t, ok)

	custom := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	assert.Same(t, custom, forwardTarget(custom))
}
