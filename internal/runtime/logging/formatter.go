package logging

import (
	"time"

	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
)

// Record messages produced by DefaultFormatter.
const (
	OutgoingMessage = "Outgoing message"
	IncomingMessage = "Incoming message"
)

// LogMessage is a formatted communication record.
type LogMessage struct {
	Message string
	Context LogFields
}

// Formatter turns one publish or delivery into a log record.
type Formatter interface {
	FormatOutgoing(routingKey string, env envelopepkg.Envelope, elapsed time.Duration, err error) LogMessage
	FormatIncoming(eventName string, env envelopepkg.Envelope, elapsed time.Duration, err error) LogMessage
}

// DefaultFormatter records the routing key, the envelope metadata, the
// payload size and the elapsed time in fractional milliseconds.
type DefaultFormatter struct {
	// IncludePayload adds the encoded payload as the data field. Binary
	// payloads are base64 encoded with data_encoding set.
	IncludePayload bool
}

// NewDefaultFormatter returns a formatter that leaves payloads out of the record.
func NewDefaultFormatter() DefaultFormatter {
	return DefaultFormatter{}
}

// FormatOutgoing implements Formatter.
func (f DefaultFormatter) FormatOutgoing(routingKey string, env envelopepkg.Envelope, elapsed time.Duration, err error) LogMessage {
	return LogMessage{
		Message: OutgoingMessage,
		Context: f.context("routing_key", routingKey, env, elapsed, err),
	}
}

// FormatIncoming implements Formatter.
func (f DefaultFormatter) FormatIncoming(eventName string, env envelopepkg.Envelope, elapsed time.Duration, err error) LogMessage {
	return LogMessage{
		Message: IncomingMessage,
		Context: f.context("event", eventName, env, elapsed, err),
	}
}

func (f DefaultFormatter) context(keyField, key string, env envelopepkg.Envelope, elapsed time.Duration, err error) LogFields {
	fields := LogFields(env.Fields())
	if !f.IncludePayload {
		delete(fields, "data")
		delete(fields, "data_encoding")
	}
	fields[keyField] = key
	fields["payload_bytes"] = len(env.Data)
	fields["elapsed_ms"] = float64(elapsed.Microseconds()) / 1000
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}
