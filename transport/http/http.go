// Package http provides an HTTP report transport. Reports are POSTed to a
// relay endpoint, optionally authenticated with the client DSN; a tail can
// receive them by running the subscriber side.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/faultline/internal/runtime/config"
	"github.com/drblury/faultline/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// AuthHeader carries the DSN credentials on every request.
const AuthHeader = "X-Sentry-Auth"

// ClientName is reported in the auth header.
const ClientName = "faultline-go"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP transport. The subscriber is only created when a
// server address is configured and the caller did not ask for publish-only.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	publisherURL := cfg.GetHTTPPublisherURL()
	if publisherURL == "" {
		return transport.Transport{}, errors.New("http: publisher URL is required")
	}
	if !strings.HasSuffix(publisherURL, "/") {
		publisherURL += "/"
	}

	var auth string
	if raw := cfg.GetDSN(); raw != "" {
		dsn, err := config.ParseDSN(raw)
		if err != nil {
			return transport.Transport{}, err
		}
		auth = dsn.AuthHeader(ClientName)
	}

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				req, err := http.DefaultMarshalMessageFunc(publisherURL+topic, msg)
				if err != nil {
					return nil, err
				}
				req.Header.Set("Content-Type", "application/json")
				if auth != "" {
					req.Header.Set(AuthHeader, auth)
				}
				return req, nil
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	serverAddr := cfg.GetHTTPServerAddress()
	if transport.IsPublishOnly(ctx) || serverAddr == "" {
		return transport.Transport{Publisher: publisher}, nil
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	if s, ok := subscriber.(*http.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("Failed to start HTTP subscriber server", err, watermill.LogFields{"addr": serverAddr})
			}
		}()
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
