package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	metadatapkg "github.com/drblury/faultline/internal/runtime/metadata"
	"github.com/drblury/faultline/internal/runtime/report"
	"github.com/drblury/faultline/transport"
)

// PublisherSink publishes reports as CloudEvents messages on a Watermill
// publisher.
type PublisherSink struct {
	publisher message.Publisher
	topic     string
	encoding  string
	closers   []io.Closer
	caps      transport.Capabilities
}

// NewPublisherSink creates a sink publishing to topic. Closing the sink
// closes the publisher and any extra closers.
func NewPublisherSink(publisher message.Publisher, topic, encoding string, extra ...io.Closer) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	return &PublisherSink{publisher: publisher, topic: topic, encoding: encoding, closers: extra}, nil
}

// WithCapabilities makes Send reject reports whose payload exceeds
// caps.MaxMessageSize instead of handing them to the broker.
func (s *PublisherSink) WithCapabilities(caps transport.Capabilities) *PublisherSink {
	s.caps = caps
	return s
}

// NewReportMessage converts r into a Watermill message whose payload is the
// CloudEvents JSON document and whose metadata carries the routing headers.
func NewReportMessage(r *report.Report, encoding string) (*message.Message, error) {
	evt, err := report.Envelope(r, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to build report envelope: %w", err)
	}
	payload, err := evt.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report envelope: %w", err)
	}
	msg := message.NewMessage(r.EventID, payload)
	msg.Metadata = metadatapkg.ToWatermill(metadatapkg.ForEvent(evt))
	return msg, nil
}

func (s *PublisherSink) Send(ctx context.Context, r *report.Report) error {
	msg, err := NewReportMessage(r, s.encoding)
	if err != nil {
		return err
	}
	if !s.caps.FitsMessage(len(msg.Payload)) {
		return fmt.Errorf("%w: %d bytes, %s allows %d", errspkg.ErrReportTooLarge, len(msg.Payload), s.caps.Name, s.caps.MaxMessageSize)
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return s.publisher.Publish(s.topic, msg)
}

func (s *PublisherSink) Close() error {
	errs := []error{s.publisher.Close()}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
