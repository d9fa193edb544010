/*
Package runtime hosts the dispatcher and the Watermill based service that
carries its envelopes.

The Dispatcher is transport agnostic: Publish hands an envelope to a
Transport under the routing key derived from the message type, and Adapter
turns a typed handler into an AdapterFunc receiving the event name and the
delivered envelopes. Both sides log one communication record per message and
report to an optional MetricsRecorder.

Service wires a Dispatcher to a WatermillTransport over the configured
publisher, subscribes listeners to their routing keys on a Watermill router,
and runs the default middleware chain:

  - correlation_id: stamps a ULID correlation id on messages without one
  - log_messages: debug record per consumed message
  - tracer: OpenTelemetry consumer span
  - metrics: Watermill router metrics and /metrics, when enabled
  - retry: exponential backoff, skipping failures that can never succeed
  - poison_queue: forwards those failures to Config.PoisonQueue, when set
  - recoverer: turns panics into errors

Per listener statistics are exposed through Service.Listeners and, with the
web UI enabled, at /api/listeners and /api/dispatch.
*/
package runtime
