package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	"github.com/drblury/faultline/internal/runtime/cloudevents"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	metadatapkg "github.com/drblury/faultline/internal/runtime/metadata"
	"github.com/drblury/faultline/internal/runtime/report"
	"github.com/drblury/faultline/transport"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return errors.New("subscriber close failed")
}

func sampleReport() *report.Report {
	return &report.Report{
		EventID:     "0190b4f1c2d3e4f5a6b7c8d9e0f1a2b3",
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:       breadcrumbs.LevelError,
		Message:     "disk full",
		Release:     "r9",
		Environment: "prod",
		ServerName:  "worker-3",
	}
}

func TestNewReportMessage(t *testing.T) {
	msg, err := NewReportMessage(sampleReport(), report.EncodingJSON)
	require.NoError(t, err)

	assert.Equal(t, "0190b4f1c2d3e4f5a6b7c8d9e0f1a2b3", msg.UUID)
	assert.Equal(t, cloudevents.ReportType, msg.Metadata.Get(metadatapkg.KeyType))
	assert.Equal(t, "worker-3", msg.Metadata.Get(metadatapkg.KeySource))
	assert.Equal(t, breadcrumbs.LevelError, msg.Metadata.Get(metadatapkg.KeyPrefix+cloudevents.ExtLevel))
	assert.Equal(t, "r9", msg.Metadata.Get(metadatapkg.KeyPrefix+cloudevents.ExtRelease))

	decoded, evt, err := report.Unmarshal(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "disk full", decoded.Message)
	assert.Equal(t, "0190b4f1c2d3e4f5a6b7c8d9e0f1a2b3", evt.ID)
}

func TestPublisherSink(t *testing.T) {
	_, err := NewPublisherSink(nil, "reports", report.EncodingJSON)
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
	_, err = NewPublisherSink(newTestPublisher(), "", report.EncodingJSON)
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)

	pub := newTestPublisher()
	sub := &closeRecorder{}
	sink, err := NewPublisherSink(pub, "reports", report.EncodingProtoJSON, sub)
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), sampleReport()))
	msgs := pub.Messages("reports")
	require.Len(t, msgs, 1)
	assert.Equal(t, report.EncodingProtoJSON, msgs[0].Metadata.Get(metadatapkg.KeyPrefix+cloudevents.ExtEncoding))

	decoded, _, err := report.Unmarshal(msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "worker-3", decoded.ServerName)

	pub.err = errors.New("broker down")
	assert.EqualError(t, sink.Send(context.Background(), sampleReport()), "broker down")

	err = sink.Close()
	assert.EqualError(t, err, "subscriber close failed")
	assert.True(t, pub.closed)
	assert.True(t, sub.closed)
}

func TestPublisherSinkRejectsOversizedReports(t *testing.T) {
	pub := newTestPublisher()
	sink, err := NewPublisherSink(pub, "reports", report.EncodingJSON)
	require.NoError(t, err)
	sink.WithCapabilities(transport.Capabilities{Name: "tiny", MaxMessageSize: 64})

	err = sink.Send(context.Background(), sampleReport())
	require.ErrorIs(t, err, errspkg.ErrReportTooLarge)
	assert.Contains(t, err.Error(), "tiny allows 64")
	assert.Empty(t, pub.Messages("reports"))

	sink.WithCapabilities(transport.Capabilities{Name: "roomy"})
	require.NoError(t, sink.Send(context.Background(), sampleReport()))
	assert.Len(t, pub.Messages("reports"), 1)
}
