package runtime

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	idspkg "github.com/drblury/protoevents/internal/runtime/ids"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
)

const metricsNamespace = "protoevents"

// MiddlewareBuilder constructs a router middleware for a service. Returning
// a nil middleware skips the registration.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration names a middleware and how to build it.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig tunes the retry middleware. Zero values fall back to
// the service configuration, then to the defaults.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf defaults to retrying everything except decode and contract errors.
	RetryIf func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = isRetryable
	}
	return cfg
}

// isRetryable rejects failures that fail identically on every attempt.
func isRetryable(err error) bool {
	return !isPoison(err)
}

// isPoison matches deliveries that can never succeed: unreadable envelopes,
// undecodable payloads and unsatisfiable handler contracts.
func isPoison(err error) bool {
	var unprocessable *UnprocessableEventError
	return errors.As(err, &unprocessable) || errspkg.IsInvalidMessage(err) || errspkg.IsHandlerContract(err)
}

// DefaultMiddlewares is the chain every service gets unless disabled.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Watermill's Prometheus router metrics and mounts
// /metrics on the metrics port. It is skipped when metrics are disabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			subsystem := strings.ReplaceAll(s.Conf.PubSubSystem, "-", "_")
			builder := metrics.NewPrometheusMetricsBuilder(s.registerer, metricsNamespace, subsystem)
			builder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", metricsHandler(s.registerer))
			}
			return builder.NewRouterMiddleware().Middleware, nil
		},
	}
}

func metricsHandler(registerer prometheus.Registerer) http.Handler {
	if gatherer, ok := registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// CorrelationIDMiddleware stamps a ULID correlation id on messages without one.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "correlation_id",
		Middleware: correlationIDMiddleware,
	}
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(envelopepkg.MetadataKeyCorrelationID) == "" {
			msg.Metadata.Set(envelopepkg.MetadataKeyCorrelationID, idspkg.New())
		}
		return h(msg)
	}
}

// LogMessagesMiddleware logs every consumed message at debug level. A nil
// logger selects the service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Consuming message", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"topic":        message.SubscribeTopicFromCtx(msg.Context()),
				"metadata":     metadatapkg.FromWatermill(msg.Metadata),
				"payload_size": len(msg.Payload),
			})
			return h(msg)
		}
	}
}

// TracerMiddleware wraps each delivery in a consumer span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "tracer",
		Middleware: tracerMiddleware,
	}
}

func tracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		ctx, span := tracer.Start(msg.Context(), "consume "+topic, trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		msg.SetContext(ctx)

		span.SetAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.message_id", msg.UUID),
			attribute.String("messaging.correlation_id", msg.Metadata.Get(envelopepkg.MetadataKeyCorrelationID)),
			attribute.String("messaging.handler", message.HandlerNameFromCtx(ctx)),
		)
		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return msgs, err
	}
}

// RetryMiddleware retries failed deliveries with exponential backoff. Zero
// fields take the service configuration's retry settings.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			merged := cfg
			if merged.MaxRetries == 0 {
				merged.MaxRetries = s.Conf.RetryMaxRetries
			}
			if merged.InitialInterval == 0 {
				merged.InitialInterval = s.Conf.RetryInitialInterval
			}
			if merged.MaxInterval == 0 {
				merged.MaxInterval = s.Conf.RetryMaxInterval
			}
			return retryMiddleware(merged, s.Logger), nil
		},
	}
}

func retryMiddleware(cfg RetryMiddlewareConfig, logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	normalized := cfg.withDefaults()
	retry := middleware.Retry{
		MaxRetries:      normalized.MaxRetries,
		InitialInterval: normalized.InitialInterval,
		MaxInterval:     normalized.MaxInterval,
		Multiplier:      2,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return normalized.RetryIf(params.Err)
		},
	}
	if logger != nil {
		retry.Logger = loggingpkg.NewWatermillAdapter(logger)
	}
	return retry.Middleware
}

// PoisonQueueMiddleware forwards failures matching filter to the configured
// poison queue. A nil filter matches unreadable envelopes, decode failures
// and handler contract errors. It is skipped when no poison queue is set.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if s.Conf.PoisonQueue == "" {
				return nil, nil
			}
			if s.publisher == nil {
				return nil, errspkg.ErrPublisherRequired
			}
			f := filter
			if f == nil {
				f = isPoison
			}
			return middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, f)
		},
	}
}

// RecovererMiddleware turns handler panics into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware adds cfg to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		if mw, err = cfg.Builder(s); err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}
	if mw == nil {
		return nil
	}
	s.router.AddMiddleware(mw)
	return nil
}
