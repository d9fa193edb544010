// Package handlers resolves the payload type a listener expects and invokes it
// with a decoded message.
package handlers

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

// InvokeFunc runs a handler with an already decoded payload.
type InvokeFunc func(ctx context.Context, msg proto.Message) (any, error)

// Binding pairs a handler with the message type its payload decodes into.
type Binding struct {
	// HandlerName identifies the handler in logs and contract errors.
	HandlerName string
	// MessageType builds fresh payload instances for decoding.
	MessageType protoreflect.MessageType
	// Target is the value inspected for optional capabilities such as
	// ClientReceiver and HeadersReceiver. It may be nil.
	Target any

	invoke InvokeFunc
}

// TypeName returns the protobuf full name of the bound payload type.
func (b *Binding) TypeName() string {
	return string(b.MessageType.Descriptor().FullName())
}

// Invoke calls the handler with msg. msg must be an instance of MessageType.
func (b *Binding) Invoke(ctx context.Context, msg proto.Message) (any, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	if got := msg.ProtoReflect().Descriptor().FullName(); got != b.MessageType.Descriptor().FullName() {
		return nil, fmt.Errorf("%s expects %s, got %s", b.HandlerName, b.TypeName(), got)
	}
	return b.invoke(ctx, msg)
}

// WithTarget returns a copy of the binding whose capabilities are taken from target.
func (b *Binding) WithTarget(target any) *Binding {
	clone := *b
	clone.Target = target
	return &clone
}

// Bind registers fn for the generated message type T without reflection.
func Bind[T proto.Message](fn func(ctx context.Context, msg T) error) (*Binding, error) {
	if fn == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	var zero T
	name := fmt.Sprintf("func(context.Context, %T) error", zero)
	messageType, err := messageTypeOf(zero)
	if err != nil {
		return nil, errspkg.NewMissingHandleMethod(name, err.Error())
	}

	return &Binding{
		HandlerName: name,
		MessageType: messageType,
		invoke: func(ctx context.Context, msg proto.Message) (any, error) {
			typed, ok := msg.(T)
			if !ok {
				return nil, fmt.Errorf("%s cannot accept %T", name, msg)
			}
			return nil, fn(ctx, typed)
		},
	}, nil
}

// BindType registers fn for an explicit message type, which may be dynamic.
func BindType(messageType protoreflect.MessageType, fn InvokeFunc) (*Binding, error) {
	if fn == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if messageType == nil || messageType.Descriptor() == nil {
		return nil, errspkg.NewMissingHandleMethod("handler func", "message type is required")
	}
	return &Binding{
		HandlerName: fmt.Sprintf("handler for %s", messageType.Descriptor().FullName()),
		MessageType: messageType,
		invoke:      fn,
	}, nil
}

// messageTypeOf reads the message type from a possibly nil generated message.
// Messages whose type lives on the instance, such as dynamicpb, cannot be
// introspected this way.
func messageTypeOf(msg proto.Message) (mt protoreflect.MessageType, err error) {
	defer func() {
		if r := recover(); r != nil {
			mt, err = nil, fmt.Errorf("%T cannot be instantiated: %v", msg, r)
		}
	}()
	if msg == nil {
		return nil, fmt.Errorf("payload type is an interface")
	}
	mt = msg.ProtoReflect().Type()
	if mt == nil || mt.Descriptor() == nil {
		return nil, fmt.Errorf("%T cannot be instantiated", msg)
	}
	// Force the descriptor to be read so broken types fail here and not at dispatch.
	_ = mt.Descriptor().FullName()
	return mt, nil
}
