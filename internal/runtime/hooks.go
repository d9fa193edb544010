package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
)

// DeliveryContext describes one delivery to a listener.
type DeliveryContext struct {
	Listener      string
	EventName     string
	MessageUUID   string
	CorrelationID string
	// Metadata is a copy of the transport metadata of the message.
	Metadata metadatapkg.Headers
	// Client is the origin of the envelope. It is only known once the
	// envelope has been read, so OnDeliveryStart never sees it.
	Client    string
	Context   context.Context
	StartedAt time.Time
	// Duration is set for OnDeliveryDone and OnDeliveryError.
	Duration time.Duration
}

// DeliveryHooks are optional callbacks around listener deliveries.
type DeliveryHooks struct {
	OnDeliveryStart func(DeliveryContext)
	OnDeliveryDone  func(DeliveryContext)
	OnDeliveryError func(DeliveryContext, error)
}

// Merge returns hooks calling h first and other second.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: chainHooks(h.OnDeliveryStart, other.OnDeliveryStart),
		OnDeliveryDone:  chainHooks(h.OnDeliveryDone, other.OnDeliveryDone),
		OnDeliveryError: chainErrorHooks(h.OnDeliveryError, other.OnDeliveryError),
	}
}

func (h DeliveryHooks) start(dc DeliveryContext) {
	if h.OnDeliveryStart != nil {
		h.OnDeliveryStart(dc)
	}
}

func (h DeliveryHooks) finish(dc DeliveryContext, err error) {
	if err != nil {
		if h.OnDeliveryError != nil {
			h.OnDeliveryError(dc, err)
		}
		return
	}
	if h.OnDeliveryDone != nil {
		h.OnDeliveryDone(dc)
	}
}

func chainHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(dc DeliveryContext) {
		a(dc)
		b(dc)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(dc DeliveryContext, err error) {
		a(dc, err)
		b(dc, err)
	}
}

// LoggingHooks traces delivery starts and completions. Failures are already
// logged by the dispatcher, so errors are traced too rather than logged twice.
func LoggingHooks(logger loggingpkg.ServiceLogger) DeliveryHooks {
	fields := func(dc DeliveryContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"listener":       dc.Listener,
			"event":          dc.EventName,
			"message_uuid":   dc.MessageUUID,
			"correlation_id": dc.CorrelationID,
		}
	}
	return DeliveryHooks{
		OnDeliveryStart: func(dc DeliveryContext) {
			logger.Trace("Delivery started", fields(dc))
		},
		OnDeliveryDone: func(dc DeliveryContext) {
			f := fields(dc)
			f["duration_ms"] = dc.Duration.Milliseconds()
			logger.Trace("Delivery completed", f)
		},
		OnDeliveryError: func(dc DeliveryContext, err error) {
			f := fields(dc)
			f["duration_ms"] = dc.Duration.Milliseconds()
			f["error"] = err.Error()
			logger.Trace("Delivery failed", f)
		},
	}
}

// AlertingHooks calls alert for every failed delivery.
func AlertingHooks(alert func(DeliveryContext, error)) DeliveryHooks {
	return DeliveryHooks{OnDeliveryError: alert}
}
