package protoevents

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/protoevents/internal/runtime"
	codecpkg "github.com/drblury/protoevents/internal/runtime/codec"
	configpkg "github.com/drblury/protoevents/internal/runtime/config"
	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	handlerpkg "github.com/drblury/protoevents/internal/runtime/handlers"
	idspkg "github.com/drblury/protoevents/internal/runtime/ids"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
	routingpkg "github.com/drblury/protoevents/internal/runtime/routing"
	transportpkg "github.com/drblury/protoevents/internal/runtime/transport"
	newtransport "github.com/drblury/protoevents/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	Dispatcher         = runtimepkg.Dispatcher
	DispatcherConfig   = runtimepkg.DispatcherConfig
	DispatcherOption   = runtimepkg.DispatcherOption
	Transport          = runtimepkg.Transport
	TransportFunc      = runtimepkg.TransportFunc
	WatermillTransport = runtimepkg.WatermillTransport
	AdapterFunc        = runtimepkg.AdapterFunc
	HandlerFactory     = runtimepkg.HandlerFactory
	MetricsRecorder    = runtimepkg.MetricsRecorder

	// PubSub is the publisher and subscriber pair a service runs on.
	PubSub               = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	Envelope        = envelopepkg.Envelope
	Headers         = metadatapkg.Headers
	Codec           = codecpkg.Codec
	Binding         = handlerpkg.Binding
	Resolver        = handlerpkg.Resolver
	ClientReceiver  = handlerpkg.ClientReceiver
	HeadersReceiver = handlerpkg.HeadersReceiver

	ListenerRegistration                       = runtimepkg.ListenerRegistration
	ProtoListenerRegistration[T proto.Message] = runtimepkg.ProtoListenerRegistration[T]
	ListenerInfo                               = runtimepkg.ListenerInfo
	ListenerStats                              = runtimepkg.ListenerStats

	DeliveryContext = runtimepkg.DeliveryContext
	DeliveryHooks   = runtimepkg.DeliveryHooks

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	LogLevel                  = loggingpkg.Level
	LogFields                 = loggingpkg.LogFields
	LogMessage                = loggingpkg.LogMessage
	Formatter                 = loggingpkg.Formatter
	DefaultFormatter          = loggingpkg.DefaultFormatter
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	UnprocessableEventError = runtimepkg.UnprocessableEventError
	ErrorClassifier         = runtimepkg.ErrorClassifier
	ErrorKind               = errspkg.Kind
	ContractKind            = errspkg.ContractKind
	InvalidMessageError     = errspkg.InvalidMessageError
	HandlerContractError    = errspkg.HandlerContractError
	ConfigValidationError   = errspkg.ConfigValidationError

	DispatchMetrics         = runtimepkg.DispatchMetrics
	DispatchKeyMetrics      = runtimepkg.DispatchKeyMetrics
	DispatchMetricsSnapshot = runtimepkg.DispatchMetricsSnapshot

	Capabilities      = newtransport.Capabilities
	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig
	ConfigFromEnv  = configpkg.FromEnv

	NewDispatcher          = runtimepkg.NewDispatcher
	WithLogger             = runtimepkg.WithLogger
	WithFormatter          = runtimepkg.WithFormatter
	WithMetrics            = runtimepkg.WithMetrics
	WithResolver           = runtimepkg.WithResolver
	WithClock              = runtimepkg.WithClock
	NewWatermillTransport  = runtimepkg.NewWatermillTransport
	EventSchemaFromContext = runtimepkg.EventSchemaFromContext

	RegisterListener = runtimepkg.RegisterListener

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewDispatchMetrics         = runtimepkg.NewDispatchMetrics
	NewUnprocessableEventError = runtimepkg.NewUnprocessableEventError

	DeriveRoutingKey       = routingpkg.Derive
	DeriveScopedRoutingKey = routingpkg.DeriveScoped
	RoutingKeyFor          = routingpkg.ForMessage

	CodecByName = codecpkg.ByName
	JSONCodec   = codecpkg.JSON
	BinaryCodec = codecpkg.Binary

	ResolveHandler = handlerpkg.Resolve
	NewResolver    = handlerpkg.NewResolver
	BindType       = handlerpkg.BindType

	MarshalEnvelope   = envelopepkg.Marshal
	UnmarshalEnvelope = envelopepkg.Unmarshal
	NewHeaders        = metadatapkg.New

	ParseLogLevel             = loggingpkg.ParseLevel
	NewDefaultFormatter       = loggingpkg.NewDefaultFormatter
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.NopLogger

	NewEventID = idspkg.New

	GetCapabilities          = transportpkg.Capabilities
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	IsInvalidMessage  = errspkg.IsInvalidMessage
	IsHandlerContract = errspkg.IsHandlerContract

	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrEventNameRequired   = errspkg.ErrEventNameRequired
	ErrTransportRequired   = errspkg.ErrTransportRequired
	ErrMessageRequired     = errspkg.ErrMessageRequired
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrRoutingKeyRequired  = errspkg.ErrRoutingKeyRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrUnknownCodec        = errspkg.ErrUnknownCodec
	ErrEnvelopeDataMissing = errspkg.ErrEnvelopeDataMissing
)

const (
	LogLevelTrace = loggingpkg.LevelTrace
	LogLevelDebug = loggingpkg.LevelDebug
	LogLevelInfo  = loggingpkg.LevelInfo
	LogLevelError = loggingpkg.LevelError

	ErrorKindNone            = errspkg.KindNone
	ErrorKindInvalidMessage  = errspkg.KindInvalidMessage
	ErrorKindHandlerContract = errspkg.KindHandlerContract
	ErrorKindTransport       = errspkg.KindTransport
	ErrorKindHandler         = errspkg.KindHandler

	MissingHandleMethod = errspkg.MissingHandleMethod
	MissingClient       = errspkg.MissingClient
	EmptyDelivery       = errspkg.EmptyDelivery

	CodecJSON   = codecpkg.NameJSON
	CodecBinary = codecpkg.NameBinary
)

// Metadata keys set on Watermill messages carrying an envelope.
const (
	MetadataKeyCorrelationID = envelopepkg.MetadataKeyCorrelationID
	MetadataKeyEventSchema   = envelopepkg.MetadataKeyEventSchema
	MetadataKeyClient        = envelopepkg.MetadataKeyClient
	MetadataKeyRoutingKey    = envelopepkg.MetadataKeyRoutingKey
)

// RegisterProtoListener subscribes a typed function without reflection.
func RegisterProtoListener[T proto.Message](svc *Service, cfg ProtoListenerRegistration[T]) error {
	return runtimepkg.RegisterProtoListener(svc, cfg)
}

// Bind turns a typed function into a Binding accepted by RegisterListener
// and Dispatcher.Adapter.
func Bind[T proto.Message](fn func(ctx context.Context, msg T) error) (*Binding, error) {
	return handlerpkg.Bind(fn)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// NewZerologServiceLogger logs through zerolog, dropping records below minLevel.
func NewZerologServiceLogger(logger zerolog.Logger, minLevel slog.Level) ServiceLogger {
	return loggingpkg.NewZerologServiceLogger(logger, minLevel)
}
