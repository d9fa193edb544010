// Package envelope defines the wire mapping exchanged with the transport and
// its conversion to and from Watermill messages.
package envelope

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
)

var api = sonic.ConfigStd

// Envelope carries an encoded payload plus optional delivery metadata.
// Optional fields are omitted from the wire when unset.
type Envelope struct {
	Client        string              `json:"client,omitempty"`
	Data          []byte              `json:"data"`
	Headers       metadatapkg.Headers `json:"headers,omitempty"`
	RequestID     string              `json:"request_id,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Priority      *uint8              `json:"priority,omitempty"`
}

// wireEnvelope distinguishes a missing data field from an empty payload.
type wireEnvelope struct {
	Client        string              `json:"client,omitempty"`
	Data          *[]byte             `json:"data"`
	Headers       metadatapkg.Headers `json:"headers,omitempty"`
	RequestID     string              `json:"request_id,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Priority      *uint8              `json:"priority,omitempty"`
}

// HasHeaders reports whether the envelope carries at least one header.
func (e Envelope) HasHeaders() bool {
	return !e.Headers.IsEmpty()
}

// HasClient reports whether the envelope names its origin client.
func (e Envelope) HasClient() bool {
	return e.Client != ""
}

// Fields returns the envelope as a string-keyed mapping containing only the
// fields that are set, which is how it is presented to log formatters. Data
// that is not valid UTF-8, such as a binary protobuf payload, is base64
// encoded and flagged with data_encoding.
func (e Envelope) Fields() map[string]any {
	fields := map[string]any{"data": string(e.Data)}
	if !utf8.Valid(e.Data) {
		fields["data"] = base64.StdEncoding.EncodeToString(e.Data)
		fields["data_encoding"] = "base64"
	}
	if e.Client != "" {
		fields["client"] = e.Client
	}
	if e.HasHeaders() {
		fields["headers"] = map[string]string(e.Headers.Clone())
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if e.CorrelationID != "" {
		fields["correlation_id"] = e.CorrelationID
	}
	if e.Priority != nil {
		fields["priority"] = *e.Priority
	}
	return fields
}

// WithPriority returns a copy of the envelope carrying the priority hint.
func (e Envelope) WithPriority(priority uint8) Envelope {
	e.Priority = &priority
	return e
}

// Marshal encodes the envelope as JSON.
func Marshal(env Envelope) ([]byte, error) {
	data := env.Data
	if data == nil {
		data = []byte{}
	}
	wire := wireEnvelope{
		Client:        env.Client,
		Data:          &data,
		Headers:       env.Headers.OrNil(),
		RequestID:     env.RequestID,
		CorrelationID: env.CorrelationID,
		Priority:      env.Priority,
	}
	payload, err := api.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return payload, nil
}

// Unmarshal decodes a JSON envelope. The data field is mandatory.
func Unmarshal(payload []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := api.Unmarshal(payload, &wire); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if wire.Data == nil {
		return Envelope{}, errspkg.ErrEnvelopeDataMissing
	}
	return Envelope{
		Client:        wire.Client,
		Data:          *wire.Data,
		Headers:       wire.Headers,
		RequestID:     wire.RequestID,
		CorrelationID: wire.CorrelationID,
		Priority:      wire.Priority,
	}, nil
}
