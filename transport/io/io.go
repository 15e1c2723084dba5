// Package io provides a file transport that appends reports to a JSON-lines
// log. The subscriber follows the file like tail -f.
package io

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/faultline/internal/runtime/jsoncodec"
	"github.com/drblury/faultline/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "reports.log"

// PollInterval is how long the subscriber waits at the end of the file
// before looking for new lines.
var PollInterval = 50 * time.Millisecond

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Publisher{filePath: filePath, logger: logger}, nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{filePath: filePath, logger: logger}, nil
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a new file transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	if transport.IsPublishOnly(ctx) {
		return transport.Transport{Publisher: pub}, nil
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// line is one entry of the report log. Payloads are JSON documents and are
// embedded as-is so the log stays readable.
type line struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  json.RawMessage   `json:"payload"`
}

// Publisher appends messages to the report log.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Publish appends one line per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("io publisher is closed")
	}
	if p.file == nil {
		f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		p.file = f
	}

	for _, msg := range messages {
		if !json.Valid(msg.Payload) {
			return errors.New("io publisher: payload of message " + msg.UUID + " is not JSON")
		}
		b, err := jsoncodec.Marshal(line{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  json.RawMessage(msg.Payload),
		})
		if err != nil {
			return err
		}
		if _, err := p.file.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the log file.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Subscriber follows the report log from the beginning.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe delivers every line for topic, waiting for each message to be
// acked or nacked before reading on. The channel closes when ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()

		reader := bufio.NewReader(f)
		var pending []byte
		for {
			chunk, err := reader.ReadBytes('\n')
			pending = append(pending, chunk...)
			switch {
			case errors.Is(err, io.EOF):
				if !wait(ctx, PollInterval) {
					return
				}
				continue
			case err != nil:
				s.logger.Error("Failed to read report log", err, watermill.LogFields{"file": s.filePath})
				return
			}

			if !s.deliver(ctx, out, pending, topic) {
				return
			}
			pending = nil
		}
	}()

	return out, nil
}

// Close is a no-op; subscriptions end with their context.
func (s *Subscriber) Close() error {
	return nil
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, raw []byte, topic string) bool {
	var l line
	if err := jsoncodec.Unmarshal(raw, &l); err != nil {
		s.logger.Error("Skipping malformed report log line", err, nil)
		return true
	}
	if l.Topic != topic {
		return true
	}

	msg := message.NewMessage(l.UUID, []byte(l.Payload))
	for k, v := range l.Metadata {
		msg.Metadata.Set(k, v)
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Report nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	}
	return true
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
