// Package transport defines how error reports leave the process. Each
// transport (kafka, rabbitmq, sentry, ...) lives in its own sub-package and
// registers a Builder with the registry from an init function.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport is the publisher and optional subscriber a Builder produces.
// Reports are published; the subscriber is used by tooling that tails the
// report topic.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the subset of the client configuration transports read.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string
	GetTopic() string
	// GetEncoding returns the report payload encoding ("json" or "protojson").
	GetEncoding() string

	// GetDSN returns the full error collector DSN, secret included.
	GetDSN() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// IO
	GetIOFile() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

type publishOnlyKey struct{}

// PublishOnly marks ctx so builders skip creating a subscriber. Clients
// only publish; connecting a consumer would waste a broker connection.
func PublishOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, publishOnlyKey{}, true)
}

// IsPublishOnly reports whether ctx was marked with PublishOnly.
func IsPublishOnly(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(publishOnlyKey{}).(bool)
	return v
}
