package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesReliableDelivery(t *testing.T) {
	assert.True(t, Capabilities{SupportsAck: true, SupportsNack: true}.SupportsReliableDelivery())
	assert.False(t, Capabilities{SupportsAck: true}.SupportsReliableDelivery())
	assert.False(t, Capabilities{}.SupportsReliableDelivery())
}

func TestCapabilitiesCompetingConsumers(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{"rabbitmq", RabbitMQCapabilities, true},
		{"kafka", KafkaCapabilities, true},
		{"jetstream", NATSJetStreamCapabilities, true},
		{"aws", AWSCapabilities, true},
		{"nats core has no acks", NATSCapabilities, false},
		{"channel fans out", ChannelCapabilities, false},
		{"http", HTTPCapabilities, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.SupportsCompetingConsumers())
		})
	}
}

func TestBuiltInCapabilitiesCarryMetadata(t *testing.T) {
	for _, caps := range []Capabilities{
		ChannelCapabilities, KafkaCapabilities, RabbitMQCapabilities, NATSCapabilities,
		NATSJetStreamCapabilities, AWSCapabilities, HTTPCapabilities,
	} {
		assert.NotEmpty(t, caps.Name)
		assert.True(t, caps.SupportsMetadata, caps.Name)
	}
}
