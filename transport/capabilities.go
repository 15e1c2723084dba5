package transport

// Capabilities describes what a report transport can do.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// SupportsSubscribe is true when the transport can tail the report topic.
	SupportsSubscribe bool

	// SupportsOrdering indicates reports are delivered in publish order.
	SupportsOrdering bool

	// SupportsTracing indicates message metadata survives as broker headers,
	// so trace ids travel with the report.
	SupportsTracing bool

	// Durable is true when reports survive a restart of the receiving side.
	Durable bool

	// MaxMessageSize is the maximum payload size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// FitsMessage reports whether a payload of size bytes can be published.
func (c Capabilities) FitsMessage(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsSubscribe: true,
		SupportsOrdering:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:              "kafka",
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		Durable:           true,
		MaxMessageSize:    1048576, // broker default
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		Durable:           true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsSubscribe: true,
		SupportsTracing:   true,
		MaxMessageSize:    1048576,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsSubscribe: true,
		SupportsTracing:   true,
		Durable:           true,
		MaxMessageSize:    262144, // SNS limit
	}

	HTTPCapabilities = Capabilities{
		Name:              "http",
		SupportsSubscribe: true,
		SupportsTracing:   true,
	}

	IOCapabilities = Capabilities{
		Name:              "io",
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		Durable:           true,
	}

	SentryCapabilities = Capabilities{
		Name:           "sentry",
		Durable:        true,
		MaxMessageSize: 1048576, // collector event limit
	}
)

// GetCapabilities returns the capabilities registered for transportName on
// the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
