package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinCapabilities(t *testing.T) {
	sets := []Capabilities{
		ChannelCapabilities,
		KafkaCapabilities,
		RabbitMQCapabilities,
		NATSCapabilities,
		AWSCapabilities,
		HTTPCapabilities,
		IOCapabilities,
		SentryCapabilities,
	}
	seen := map[string]bool{}
	for _, caps := range sets {
		assert.NotEmpty(t, caps.Name)
		assert.False(t, seen[caps.Name], "duplicate capability name %q", caps.Name)
		seen[caps.Name] = true
	}

	assert.False(t, SentryCapabilities.SupportsSubscribe, "the collector cannot be tailed")
	assert.True(t, KafkaCapabilities.Durable)
}

func TestCapabilities_FitsMessage(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		size int
		want bool
	}{
		{name: "unlimited", caps: Capabilities{}, size: 1 << 30, want: true},
		{name: "at limit", caps: AWSCapabilities, size: 262144, want: true},
		{name: "over limit", caps: AWSCapabilities, size: 262145, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.FitsMessage(tt.size))
		})
	}
}
