// Package nats provides a NATS Core report transport.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/faultline/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// ConnectionName identifies faultline connections in NATS monitoring.
const ConnectionName = "faultline"

// QueueGroupPrefix is used by tail subscribers so that several tails share
// the report stream instead of each receiving every report.
const QueueGroupPrefix = "faultline-tail"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Options returns the connection options used by both sides of the transport.
func Options() []nc.Option {
	return []nc.Option{
		nc.Name(ConnectionName),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(2 * time.Second),
		nc.RetryOnFailedConnect(true),
	}
}

// Build creates a new NATS transport. Reports are fire-and-forget, so
// JetStream is disabled and plain core subjects are used.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, errors.New("nats: URL is required")
	}
	marshaler := &wmnats.NATSMarshaler{}
	jetStream := wmnats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		wmnats.PublisherConfig{
			URL:         url,
			NatsOptions: Options(),
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}
	if transport.IsPublishOnly(ctx) {
		return transport.Transport{Publisher: publisher}, nil
	}

	subscriber, err := SubscriberFactory(
		wmnats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: QueueGroupPrefix,
			NatsOptions:      Options(),
			Unmarshaler:      marshaler,
			JetStream:        jetStream,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
