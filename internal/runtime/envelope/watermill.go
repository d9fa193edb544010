package envelope

import (
	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/drblury/protoevents/internal/runtime/ids"
)

// Metadata keys set on Watermill messages that carry an envelope.
// These keys are reserved and should not be used as envelope headers.
const (
	// MetadataKeyCorrelationID tracks related messages across services.
	MetadataKeyCorrelationID = "correlation_id"

	// MetadataKeyEventSchema identifies the proto message type.
	MetadataKeyEventSchema = "event_message_schema"

	// MetadataKeyClient mirrors the envelope client for broker-side filtering.
	MetadataKeyClient = "client"

	// MetadataKeyRoutingKey records the routing key the envelope was published under.
	MetadataKeyRoutingKey = "routing_key"
)

// ToMessage wraps the envelope into a Watermill message with a ULID identifier.
func ToMessage(routingKey string, env Envelope) (*message.Message, error) {
	payload, err := Marshal(env)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(idspkg.New(), payload)
	msg.Metadata.Set(MetadataKeyRoutingKey, routingKey)
	if env.Client != "" {
		msg.Metadata.Set(MetadataKeyClient, env.Client)
	}
	if env.CorrelationID != "" {
		msg.Metadata.Set(MetadataKeyCorrelationID, env.CorrelationID)
	}
	return msg, nil
}

// FromMessage decodes the envelope carried by msg. A correlation id injected
// by middleware is copied onto the envelope when the publisher set none.
func FromMessage(msg *message.Message) (Envelope, error) {
	env, err := Unmarshal(msg.Payload)
	if err != nil {
		return Envelope{}, err
	}
	if env.CorrelationID == "" {
		env.CorrelationID = msg.Metadata.Get(MetadataKeyCorrelationID)
	}
	return env, nil
}
