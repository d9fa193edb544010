package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

const tracerName = "github.com/drblury/protoevents"

// WatermillTransport publishes envelopes through a Watermill publisher, using
// the routing key as the topic.
type WatermillTransport struct {
	publisher message.Publisher
	tracer    trace.Tracer
}

// NewWatermillTransport wraps publisher.
func NewWatermillTransport(publisher message.Publisher) (*WatermillTransport, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	return &WatermillTransport{publisher: publisher, tracer: otel.Tracer(tracerName)}, nil
}

// Publish implements Transport.
func (t *WatermillTransport) Publish(ctx context.Context, routingKey string, env envelopepkg.Envelope) error {
	if routingKey == "" {
		return errspkg.ErrRoutingKeyRequired
	}

	ctx, span := t.tracer.Start(ctx, "publish "+routingKey, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	msg, err := envelopepkg.ToMessage(routingKey, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if schema := EventSchemaFromContext(ctx); schema != "" {
		msg.Metadata.Set(envelopepkg.MetadataKeyEventSchema, schema)
	}
	msg.SetContext(ctx)

	span.SetAttributes(
		attribute.String("messaging.destination", routingKey),
		attribute.String("messaging.message_id", msg.UUID),
		attribute.Int("messaging.payload_size", len(env.Data)),
	)

	if err := t.publisher.Publish(routingKey, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
