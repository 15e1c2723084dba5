package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/faultline/transport"
)

func TestBuiltinsRegistered(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq", "sentry"},
		transport.DefaultRegistry.Names(),
	)
	for _, name := range transport.DefaultRegistry.Names() {
		assert.Equal(t, name, transport.GetCapabilities(name).Name)
	}
}
