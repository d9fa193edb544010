// Package protoevents publishes protobuf messages as events and delivers them
// to typed listeners, on top of Watermill.
//
// Every message type maps to a routing key derived from its protobuf full
// name: `billing.v1.InvoicePaid` becomes `billing.v1.invoice_paid`, and a
// service scope is prepended when one is configured. The payload is encoded
// with the configured Codec (protojson by default, or binary protobuf) and
// wrapped in an Envelope that always carries the publishing client's
// identifier and, when present, free-form headers.
//
// Listeners are plain values with a Handle method taking an optional
// context.Context and exactly one protobuf message. The payload type is read
// from that signature once and cached, so a listener never decodes by hand.
// Listeners may also implement ClientReceiver and HeadersReceiver to learn
// who published the event and which headers came with it; the dispatcher
// always calls SetClient first and SetHeaders only for non-empty headers.
//
// A minimal service fills Config, creates a Service, registers listeners and
// calls Start:
//
//	conf, _ := protoevents.ConfigFromEnv(".env")
//	svc := protoevents.NewService(conf, logger, ctx, protoevents.ServiceDependencies{})
//	_ = protoevents.RegisterListener(svc, protoevents.ListenerRegistration{Handler: &InvoicePaidListener{}})
//	go svc.Start(ctx)
//	_ = svc.Publish(ctx, &billingv1.InvoicePaid{Id: "inv-1"}, nil)
//
// # Transports
//
// The transport is selected by Config.PubSubSystem:
//   - channel: in-memory Go channels for tests and single-process setups
//   - rabbitmq: one durable queue per routing key and client
//   - kafka: consumer group named after the client
//   - nats: core NATS with a queue group per client
//   - nats-jetstream: a durable pull consumer per routing key and client
//   - http: webhooks posted to a base URL
//   - aws: SNS topics fanned out to one SQS queue per topic and client
//
// # Instrumentation
//
// Each publish and delivery is logged once through the configured Formatter,
// at the configured level on success and at error level on failure, and the
// error is then returned unchanged. DispatchMetrics records the same outcomes
// in Prometheus when metrics are enabled.
package protoevents
