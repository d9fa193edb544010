// Package codec encodes and decodes protobuf payloads carried in envelopes.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

const (
	NameJSON   = "json"
	NameBinary = "binary"
)

// Codec converts protobuf messages to and from their wire encoding. A
// deployment uses exactly one codec for every message it exchanges.
type Codec interface {
	Name() string
	Encode(msg proto.Message) ([]byte, error)
	// Decode returns a fresh instance of exactly messageType populated from
	// data, or an *errors.InvalidMessageError and a nil message.
	Decode(messageType protoreflect.MessageType, data []byte) (proto.Message, error)
}

var (
	JSON   Codec = jsonCodec{}
	Binary Codec = binaryCodec{}
)

var (
	protoJSONMarshalOptions = protojson.MarshalOptions{
		EmitUnpopulated: true,
	}
	protoJSONUnmarshalOptions = protojson.UnmarshalOptions{}
)

// ByName returns the codec registered under name. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSON, nil
	case NameBinary, "proto", "protobuf":
		return Binary, nil
	default:
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownCodec, name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return NameJSON }

func (jsonCodec) Encode(msg proto.Message) ([]byte, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	payload, err := protoJSONMarshalOptions.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return payload, nil
}

func (jsonCodec) Decode(messageType protoreflect.MessageType, data []byte) (proto.Message, error) {
	return decode(messageType, data, protoJSONUnmarshalOptions.Unmarshal)
}

type binaryCodec struct{}

func (binaryCodec) Name() string { return NameBinary }

func (binaryCodec) Encode(msg proto.Message) ([]byte, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return payload, nil
}

// errUnknownFields reports wire fields the expected type does not declare,
// which is how bytes of another type or garbage surface in the binary format.
var errUnknownFields = errors.New("payload carries fields unknown to the message type")

func (binaryCodec) Decode(messageType protoreflect.MessageType, data []byte) (proto.Message, error) {
	return decode(messageType, data, unmarshalStrict)
}

func unmarshalStrict(data []byte, msg proto.Message) error {
	if err := proto.Unmarshal(data, msg); err != nil {
		return err
	}
	if hasUnknownFields(msg.ProtoReflect()) {
		return errUnknownFields
	}
	return nil
}

func hasUnknownFields(m protoreflect.Message) bool {
	if len(m.GetUnknown()) > 0 {
		return true
	}
	found := false
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			if fd.MapValue().Message() == nil {
				return true
			}
			v.Map().Range(func(_ protoreflect.MapKey, entry protoreflect.Value) bool {
				found = hasUnknownFields(entry.Message())
				return !found
			})
		case fd.IsList():
			if fd.Message() == nil {
				return true
			}
			list := v.List()
			for i := 0; i < list.Len() && !found; i++ {
				found = hasUnknownFields(list.Get(i).Message())
			}
		case fd.Message() != nil:
			found = hasUnknownFields(v.Message())
		}
		return !found
	})
	return found
}

func decode(messageType protoreflect.MessageType, data []byte, unmarshal func([]byte, proto.Message) error) (proto.Message, error) {
	if messageType == nil {
		return nil, &errspkg.InvalidMessageError{ExpectedType: "<nil>", Cause: errspkg.ErrMessageRequired}
	}

	msg := messageType.New().Interface()
	if err := unmarshal(data, msg); err != nil {
		return nil, &errspkg.InvalidMessageError{
			ExpectedType: string(messageType.Descriptor().FullName()),
			Cause:        err,
		}
	}
	return msg, nil
}
