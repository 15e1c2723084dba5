package config

import (
	"errors"
	"fmt"
	"strings"
)

// TransportConfig groups the report delivery settings. Each transport only
// uses the keys that are relevant to it.
type TransportConfig struct {
	// Name selects the report transport: "sentry", "channel", "http", "io",
	// "kafka", "rabbitmq", "nats" or "aws".
	Name string

	// Topic is the destination reports are published to on broker transports.
	Topic string

	// Encoding of report payloads: "json" or "protojson".
	Encoding string `validate:"omitempty,oneof=json protojson"`

	KafkaBrokers       []string
	KafkaConsumerGroup string

	RabbitMQURL string

	NATSURL string

	// HTTPPublisherURL is the base URL reports are POSTed to; the topic is appended.
	HTTPPublisherURL  string
	HTTPServerAddress string

	// IOFile is the path of the JSON-lines report log.
	IOFile string

	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// AWSEndpoint optionally points to a custom endpoint (for example, LocalStack).
	AWSEndpoint string

	// DSN is filled from the client configuration; transports that talk to an
	// error collector directly use it for authentication.
	DSN DSN `validate:"-"`
}

// Getter methods implement transport.Config.
func (c *TransportConfig) GetTransport() string          { return c.Name }
func (c *TransportConfig) GetTopic() string              { return c.Topic }
func (c *TransportConfig) GetEncoding() string           { return c.Encoding }
func (c *TransportConfig) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c *TransportConfig) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }
func (c *TransportConfig) GetRabbitMQURL() string        { return c.RabbitMQURL }
func (c *TransportConfig) GetNATSURL() string            { return c.NATSURL }
func (c *TransportConfig) GetHTTPPublisherURL() string   { return c.HTTPPublisherURL }
func (c *TransportConfig) GetHTTPServerAddress() string  { return c.HTTPServerAddress }
func (c *TransportConfig) GetIOFile() string             { return c.IOFile }
func (c *TransportConfig) GetAWSRegion() string          { return c.AWSRegion }
func (c *TransportConfig) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *TransportConfig) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *TransportConfig) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *TransportConfig) GetAWSEndpoint() string        { return c.AWSEndpoint }
func (c *TransportConfig) GetDSN() string                { return c.DSN.URL() }

// Redacted returns a copy with credentials masked.
func (c TransportConfig) Redacted() TransportConfig {
	out := c
	if out.AWSSecretAccessKey != "" {
		out.AWSSecretAccessKey = redactedMarker
	}
	if out.AWSAccessKeyID != "" {
		out.AWSAccessKeyID = redactedMarker
	}
	out.RabbitMQURL = redactURLCredentials(out.RabbitMQURL)
	out.NATSURL = redactURLCredentials(out.NATSURL)
	out.HTTPPublisherURL = redactURLCredentials(out.HTTPPublisherURL)
	out.DSN = DSN{}
	return out
}

func (c TransportConfig) String() string {
	// Use a type alias to avoid infinite recursion when printing
	type configAlias TransportConfig
	return fmt.Sprintf("%+v", configAlias(c.Redacted()))
}

// merge returns c with every non-zero field of override applied on top.
func (c TransportConfig) merge(override TransportConfig) TransportConfig {
	out := c
	setString(&out.Name, override.Name)
	setString(&out.Topic, override.Topic)
	setString(&out.Encoding, override.Encoding)
	if len(override.KafkaBrokers) > 0 {
		out.KafkaBrokers = append([]string(nil), override.KafkaBrokers...)
	}
	setString(&out.KafkaConsumerGroup, override.KafkaConsumerGroup)
	setString(&out.RabbitMQURL, override.RabbitMQURL)
	setString(&out.NATSURL, override.NATSURL)
	setString(&out.HTTPPublisherURL, override.HTTPPublisherURL)
	setString(&out.HTTPServerAddress, override.HTTPServerAddress)
	setString(&out.IOFile, override.IOFile)
	setString(&out.AWSRegion, override.AWSRegion)
	setString(&out.AWSAccountID, override.AWSAccountID)
	setString(&out.AWSAccessKeyID, override.AWSAccessKeyID)
	setString(&out.AWSSecretAccessKey, override.AWSSecretAccessKey)
	setString(&out.AWSEndpoint, override.AWSEndpoint)
	return out
}

// Validate checks that the configuration has all required fields for the
// selected transport. Unknown names are accepted so custom transports can be
// registered.
func (c *TransportConfig) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		errs = append(errs, fmt.Errorf("transport: %s", describeValidation(err)))
	}

	switch strings.ToLower(c.Name) {
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka: brokers are required"))
		}
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("rabbitmq: URL is required"))
		}
	case "nats":
		if c.NATSURL == "" {
			errs = append(errs, errors.New("nats: URL is required"))
		}
	case "http":
		if c.HTTPPublisherURL == "" {
			errs = append(errs, errors.New("http: publisher URL is required"))
		}
	case "aws":
		if c.AWSRegion == "" {
			errs = append(errs, errors.New("aws: region is required"))
		}
	}

	if c.Name != "sentry" && c.Topic == "" {
		errs = append(errs, errors.New("transport: topic is required"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
