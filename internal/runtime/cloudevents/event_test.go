package cloudevents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/faultline/internal/runtime/jsoncodec"
)

func TestNewPopulatesRequiredAttributes(t *testing.T) {
	evt := New(ReportType, "web-1", map[string]any{"message": "boom"})

	assert.Equal(t, SpecVersion, evt.SpecVersion)
	assert.Equal(t, ReportType, evt.Type)
	assert.Equal(t, "web-1", evt.Source)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Time.IsZero())
	assert.NoError(t, evt.Validate())
}

func TestNewWithID(t *testing.T) {
	evt := NewWithID("abc", ReportType, "web-1", nil)
	assert.Equal(t, "abc", evt.ID)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Event){
		"specversion": func(e *Event) { e.SpecVersion = "0.3" },
		"type":        func(e *Event) { e.Type = "" },
		"source":      func(e *Event) { e.Source = "" },
		"id":          func(e *Event) { e.ID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			evt := New(ReportType, "src", nil)
			mutate(&evt)
			err := evt.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestJSONFlattensExtensions(t *testing.T) {
	evt := NewWithID("id-1", ReportType, "web-1", map[string]any{"message": "boom"}).
		WithExtension(ExtLevel, "error")
	evt.Time = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evt.DataContentType = "application/json"
	SetTrace(&evt, "trace-1", "")

	raw, err := jsoncodec.Marshal(evt)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "1.0", flat["specversion"])
	assert.Equal(t, "error", flat[ExtLevel])
	assert.Equal(t, "trace-1", flat[ExtTraceID])
	assert.NotContains(t, flat, ExtSpanID)
	assert.Equal(t, "2024-05-01T12:00:00Z", flat["time"])

	var decoded Event
	require.NoError(t, jsoncodec.Unmarshal(raw, &decoded))
	assert.Equal(t, "id-1", decoded.ID)
	assert.Equal(t, "web-1", decoded.Source)
	assert.Equal(t, "application/json", decoded.DataContentType)
	assert.True(t, evt.Time.Equal(decoded.Time))
	assert.Equal(t, "error", Level(decoded))
	assert.Equal(t, "trace-1", TraceID(decoded))
	assert.JSONEq(t, `{"message":"boom"}`, string(decoded.Data.(json.RawMessage)))
}

func TestUnmarshalRejectsBadTime(t *testing.T) {
	var evt Event
	err := jsoncodec.Unmarshal([]byte(`{"specversion":"1.0","time":"yesterday"}`), &evt)
	require.Error(t, err)
}

func TestGetExtensionString(t *testing.T) {
	evt := New(ReportType, "src", nil).WithExtension("n", 3)
	assert.Equal(t, "3", evt.GetExtensionString("n"))
	assert.Empty(t, evt.GetExtensionString("missing"))
}
