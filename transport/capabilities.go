package transport

// Capabilities describes what a broker backend offers an event service.
type Capabilities struct {
	Name string

	// SupportsClientQueues reports that deliveries are load-balanced across
	// every instance sharing a client identifier (durable queue or consumer group).
	SupportsClientQueues bool

	// SupportsOrdering reports in-order delivery per routing key.
	SupportsOrdering bool

	SupportsAck  bool
	SupportsNack bool

	// SupportsMetadata reports that message metadata, and with it envelope
	// headers mirrored there, survives the broker round trip.
	SupportsMetadata bool

	// MaxMessageSize in bytes, 0 when unknown or unbounded.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// SupportsCompetingConsumers reports whether scaling a client out to several
// instances splits the work instead of duplicating it.
func (c Capabilities) SupportsCompetingConsumers() bool {
	return c.SupportsClientQueues && c.SupportsAck
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsMetadata: true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsClientQueues: true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsMetadata:     true,
		MaxMessageSize:       1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                 "rabbitmq",
		SupportsClientQueues: true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsMetadata:     true,
	}

	NATSCapabilities = Capabilities{
		Name:                 "nats",
		SupportsClientQueues: true,
		SupportsMetadata:     true,
		MaxMessageSize:       1 << 20,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:                 "nats-jetstream",
		SupportsClientQueues: true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsMetadata:     true,
		MaxMessageSize:       1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:                 "aws",
		SupportsClientQueues: true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsMetadata:     true,
		MaxMessageSize:       256 << 10,
	}

	HTTPCapabilities = Capabilities{
		Name:             "http",
		SupportsMetadata: true,
	}
)
