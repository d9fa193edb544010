package runtime

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"

	codecpkg "github.com/drblury/protoevents/internal/runtime/codec"
	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	handlerpkg "github.com/drblury/protoevents/internal/runtime/handlers"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
	routingpkg "github.com/drblury/protoevents/internal/runtime/routing"
)

// Transport is the publish primitive the dispatcher hands envelopes to.
type Transport interface {
	Publish(ctx context.Context, routingKey string, env envelopepkg.Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, routingKey string, env envelopepkg.Envelope) error

// Publish implements Transport.
func (f TransportFunc) Publish(ctx context.Context, routingKey string, env envelopepkg.Envelope) error {
	return f(ctx, routingKey, env)
}

// MetricsRecorder observes every publish and delivery after it completes.
type MetricsRecorder interface {
	ObservePublish(routingKey string, elapsed time.Duration, err error)
	ObserveDelivery(eventName string, elapsed time.Duration, err error)
}

// AdapterFunc is the shape of a listener as seen by the host event bus: the
// event name it was registered under and the deliveries for that event.
type AdapterFunc func(ctx context.Context, eventName string, deliveries []envelopepkg.Envelope) (any, error)

// HandlerFactory builds a fresh handler for every delivery. Use it for
// handlers implementing ClientReceiver or HeadersReceiver that are invoked
// concurrently.
type HandlerFactory func() any

// DispatcherConfig holds the required collaborators of a Dispatcher.
type DispatcherConfig struct {
	Transport Transport
	// Client is stamped on every outbound envelope when set.
	Client string
	// Codec defaults to codec.JSON.
	Codec codecpkg.Codec
	// LogLevel is used for successful records and defaults to info.
	LogLevel loggingpkg.Level
}

// DispatcherOption sets an optional collaborator.
type DispatcherOption func(*Dispatcher)

// WithLogger enables communication records. A formatter is required as well.
func WithLogger(logger loggingpkg.ServiceLogger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithFormatter sets the formatter used for communication records.
func WithFormatter(formatter loggingpkg.Formatter) DispatcherOption {
	return func(d *Dispatcher) { d.formatter = formatter }
}

// WithMetrics records publish and delivery outcomes.
func WithMetrics(recorder MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = recorder }
}

// WithResolver replaces the process-wide handler resolver.
func WithResolver(resolver *handlerpkg.Resolver) DispatcherOption {
	return func(d *Dispatcher) {
		if resolver != nil {
			d.resolver = resolver
		}
	}
}

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher publishes protobuf messages as envelopes and adapts typed
// handlers into listeners. It is immutable after construction and safe for
// concurrent use.
type Dispatcher struct {
	transport Transport
	client    string
	codec     codecpkg.Codec
	level     loggingpkg.Level

	logger    loggingpkg.ServiceLogger
	formatter loggingpkg.Formatter
	metrics   MetricsRecorder
	resolver  *handlerpkg.Resolver
	now       func() time.Time
}

// NewDispatcher validates cfg and applies opts.
func NewDispatcher(cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if cfg.Transport == nil {
		return nil, errspkg.ErrTransportRequired
	}
	level, err := loggingpkg.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	codec := cfg.Codec
	if codec == nil {
		codec = codecpkg.JSON
	}

	d := &Dispatcher{
		transport: cfg.Transport,
		client:    cfg.Client,
		codec:     codec,
		level:     level,
		resolver:  handlerpkg.DefaultResolver(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Codec returns the payload codec in use.
func (d *Dispatcher) Codec() codecpkg.Codec {
	return d.codec
}

// Publish sends msg under the routing key derived from its type, prefixed with
// scope. Headers are attached only when non-empty. A transport failure is
// logged at error level and then returned unchanged.
func (d *Dispatcher) Publish(ctx context.Context, scope string, msg proto.Message, headers metadatapkg.Headers) error {
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	routingKey := routingpkg.ForMessage(scope, msg)

	data, err := d.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", routingpkg.TypeName(msg), err)
	}
	env := envelopepkg.Envelope{
		Client:  d.client,
		Data:    data,
		Headers: headers.OrNil(),
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx = withEventSchema(ctx, routingpkg.TypeName(msg))

	start := d.now()
	err = d.transport.Publish(ctx, routingKey, env)
	elapsed := d.now().Sub(start)

	if d.metrics != nil {
		d.metrics.ObservePublish(routingKey, elapsed, err)
	}
	if d.logger != nil && d.formatter != nil {
		record := d.formatter.FormatOutgoing(routingKey, env, elapsed, err)
		loggingpkg.Log(d.logger, d.levelFor(err), record.Message, err, record.Context)
	}
	return err
}

// Adapter resolves handler and returns the listener invoked for its event.
// handler may be a value with a Handle method, a *handlers.Binding, or a
// HandlerFactory. Contract errors about the Handle method are reported here,
// before any delivery is decoded.
func (d *Dispatcher) Adapter(handler any) (AdapterFunc, error) {
	switch factory := handler.(type) {
	case HandlerFactory:
		return d.factoryAdapter(factory)
	case func() any:
		return d.factoryAdapter(factory)
	}
	binding, err := d.resolver.Resolve(handler)
	if err != nil {
		return nil, err
	}
	return d.adapt(func() (*handlerpkg.Binding, error) { return binding, nil }), nil
}

// Describe resolves handler without adapting it. Factories are resolved
// through one freshly built instance.
func (d *Dispatcher) Describe(handler any) (*handlerpkg.Binding, error) {
	switch factory := handler.(type) {
	case HandlerFactory:
		if factory == nil {
			return nil, errspkg.ErrHandlerRequired
		}
		return d.resolver.Resolve(factory())
	case func() any:
		if factory == nil {
			return nil, errspkg.ErrHandlerRequired
		}
		return d.resolver.Resolve(factory())
	}
	return d.resolver.Resolve(handler)
}

// MustAdapter is like Adapter but panics on a contract error.
func (d *Dispatcher) MustAdapter(handler any) AdapterFunc {
	adapter, err := d.Adapter(handler)
	if err != nil {
		panic(err)
	}
	return adapter
}

func (d *Dispatcher) factoryAdapter(factory HandlerFactory) (AdapterFunc, error) {
	if factory == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	// Resolve one instance up front so contract errors surface at registration.
	if _, err := d.resolver.Resolve(factory()); err != nil {
		return nil, err
	}
	return d.adapt(func() (*handlerpkg.Binding, error) {
		return d.resolver.Resolve(factory())
	}), nil
}

func (d *Dispatcher) adapt(bind func() (*handlerpkg.Binding, error)) AdapterFunc {
	return func(ctx context.Context, eventName string, deliveries []envelopepkg.Envelope) (any, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		start := d.now()

		var env envelopepkg.Envelope
		if len(deliveries) > 0 {
			env = deliveries[0]
		}
		result, err := d.deliver(ctx, bind, deliveries)
		elapsed := d.now().Sub(start)

		if d.metrics != nil {
			d.metrics.ObserveDelivery(eventName, elapsed, err)
		}
		if d.logger != nil && d.formatter != nil {
			record := d.formatter.FormatIncoming(eventName, env, elapsed, err)
			loggingpkg.Log(d.logger, d.levelFor(err), record.Message, err, record.Context)
		}
		return result, err
	}
}

func (d *Dispatcher) deliver(ctx context.Context, bind func() (*handlerpkg.Binding, error), deliveries []envelopepkg.Envelope) (any, error) {
	binding, err := bind()
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, &errspkg.HandlerContractError{Handler: binding.HandlerName, Kind: errspkg.EmptyDelivery}
	}
	env := deliveries[0]

	if receiver, ok := handlerpkg.AsClientReceiver(binding.Target); ok {
		if !env.HasClient() {
			return nil, &errspkg.HandlerContractError{Handler: binding.HandlerName, Kind: errspkg.MissingClient}
		}
		receiver.SetClient(env.Client)
	}
	if receiver, ok := handlerpkg.AsHeadersReceiver(binding.Target); ok && env.HasHeaders() {
		receiver.SetHeaders(env.Headers.Clone())
	}

	msg, err := d.codec.Decode(binding.MessageType, env.Data)
	if err != nil {
		return nil, err
	}
	return binding.Invoke(ctx, msg)
}

func (d *Dispatcher) levelFor(err error) loggingpkg.Level {
	if err != nil {
		return loggingpkg.LevelError
	}
	return d.level
}

type eventSchemaKey struct{}

func withEventSchema(ctx context.Context, typeName string) context.Context {
	return context.WithValue(ctx, eventSchemaKey{}, typeName)
}

// EventSchemaFromContext returns the protobuf type name of the message being
// published, if the context was created by Dispatcher.Publish.
func EventSchemaFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(eventSchemaKey{}).(string)
	return name
}
