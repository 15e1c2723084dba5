// Package rabbitmq provides a RabbitMQ/AMQP report transport.
package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/faultline/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// CloseConnection allows overriding how the shared connection is closed.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport. Publisher and subscriber share one
// connection, which is closed once both sides are closed.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	if url == "" {
		return transport.Transport{}, errors.New("rabbitmq: URL is required")
	}

	amqpConfig := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	shared := &sharedConnection{conn: conn}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = CloseConnection(conn)
		return transport.Transport{}, err
	}
	if transport.IsPublishOnly(ctx) {
		shared.refs.Store(1)
		return transport.Transport{Publisher: &publisherCloser{Publisher: publisher, shared: shared}}, nil
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		_ = CloseConnection(conn)
		return transport.Transport{}, err
	}

	shared.refs.Store(2)
	return transport.Transport{
		Publisher:  &publisherCloser{Publisher: publisher, shared: shared},
		Subscriber: &subscriberCloser{Subscriber: subscriber, shared: shared},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

type sharedConnection struct {
	conn *amqp.ConnectionWrapper
	refs atomic.Int32
}

func (s *sharedConnection) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	return CloseConnection(s.conn)
}

type publisherCloser struct {
	message.Publisher
	shared *sharedConnection
	closed atomic.Bool
}

func (p *publisherCloser) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(p.Publisher.Close(), p.shared.release())
}

type subscriberCloser struct {
	message.Subscriber
	shared *sharedConnection
	closed atomic.Bool
}

func (s *subscriberCloser) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(s.Subscriber.Close(), s.shared.release())
}
