package metadata

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"

	"github.com/drblury/faultline/internal/runtime/cloudevents"
)

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	assert.Equal(t, Metadata{"a": "1"}, md)
}

func TestWithDoesNotMutate(t *testing.T) {
	base := New("a", "1")
	next := base.With("b", "2")
	assert.Len(t, base, 1)
	assert.Equal(t, "2", next["b"])
}

func TestForEvent(t *testing.T) {
	evt := cloudevents.NewWithID("id-1", cloudevents.ReportType, "web-1", nil).
		WithExtension(cloudevents.ExtLevel, "warning").
		WithExtension("skipped", nil)
	evt.Time = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	evt.DataContentType = "application/json"

	md := ForEvent(evt)
	assert.Equal(t, "1.0", md[KeySpecVersion])
	assert.Equal(t, cloudevents.ReportType, md[KeyType])
	assert.Equal(t, "id-1", md[KeyID])
	assert.Equal(t, "web-1", md[KeySource])
	assert.Equal(t, "2024-01-01T00:00:00Z", md[KeyTime])
	assert.Equal(t, "application/json", md[KeyContentType])
	assert.Equal(t, "warning", md[KeyPrefix+cloudevents.ExtLevel])
	assert.NotContains(t, md, KeyPrefix+"skipped")
}

func TestWatermillConversions(t *testing.T) {
	wm := ToWatermill(New("k", "v"))
	assert.Equal(t, message.Metadata{"k": "v"}, wm)
	assert.Equal(t, Metadata{"k": "v"}, FromWatermill(wm))
	assert.Empty(t, FromWatermill(nil))
}
