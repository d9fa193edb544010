package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	handlerpkg "github.com/drblury/protoevents/internal/runtime/handlers"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
	routingpkg "github.com/drblury/protoevents/internal/runtime/routing"
)

// ListenerRegistration subscribes a handler to an event.
type ListenerRegistration struct {
	// Name must be unique per service. Defaults to "<handler type>@<event name>".
	Name string
	// EventName is the routing key to consume. Defaults to the key derived
	// from the handler's payload type under the configured service scope.
	EventName string
	// Handler is a value with a Handle method, a *handlers.Binding or a
	// HandlerFactory.
	Handler any
	// Subscriber defaults to the service subscriber.
	Subscriber message.Subscriber
	// Hooks run after the service-wide hooks.
	Hooks DeliveryHooks
}

// ProtoListenerRegistration subscribes a typed function to an event without
// reflection.
type ProtoListenerRegistration[T proto.Message] struct {
	Name       string
	EventName  string
	Handle     func(ctx context.Context, msg T) error
	Subscriber message.Subscriber
	Hooks      DeliveryHooks
}

// RegisterListener resolves cfg.Handler and subscribes it to cfg.EventName.
// Handler contract errors are returned here, before anything is consumed.
func RegisterListener(svc *Service, cfg ListenerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerListener(cfg)
}

// RegisterProtoListener binds cfg.Handle with handlers.Bind and registers it.
func RegisterProtoListener[T proto.Message](svc *Service, cfg ProtoListenerRegistration[T]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Handle == nil {
		return errspkg.ErrHandlerRequired
	}
	binding, err := handlerpkg.Bind(cfg.Handle)
	if err != nil {
		return err
	}
	return svc.registerListener(ListenerRegistration{
		Name:       cfg.Name,
		EventName:  cfg.EventName,
		Handler:    binding,
		Subscriber: cfg.Subscriber,
		Hooks:      cfg.Hooks,
	})
}

func (s *Service) registerListener(cfg ListenerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	binding, err := s.dispatcher.Describe(cfg.Handler)
	if err != nil {
		return err
	}
	adapter, err := s.dispatcher.Adapter(cfg.Handler)
	if err != nil {
		return err
	}

	if cfg.EventName == "" {
		cfg.EventName = routingpkg.DeriveScoped(s.Conf.Service, binding.TypeName())
	}
	if cfg.EventName == "" {
		return errspkg.ErrEventNameRequired
	}
	if cfg.Name == "" {
		cfg.Name = binding.HandlerName + "@" + cfg.EventName
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	info := &ListenerInfo{
		Name:        cfg.Name,
		EventName:   cfg.EventName,
		PayloadType: binding.TypeName(),
		Handler:     binding.HandlerName,
		Stats:       newListenerStats(),
	}

	s.listenersMu.Lock()
	for _, existing := range s.listeners {
		if existing.Name == cfg.Name {
			s.listenersMu.Unlock()
			return fmt.Errorf("listener %q is already registered", cfg.Name)
		}
	}
	s.listeners = append(s.listeners, info)
	s.listenersMu.Unlock()

	l := listener{
		info:       info,
		adapter:    adapter,
		hooks:      s.hooks.Merge(cfg.Hooks),
		classifier: s.getErrorClassifier(),
		logger:     s.Logger,
	}
	s.router.AddNoPublisherHandler(cfg.Name, cfg.EventName, cfg.Subscriber, l.handle)

	s.Logger.Info("Listener registered", loggingpkg.LogFields{
		"listener":     cfg.Name,
		"event":        cfg.EventName,
		"payload_type": info.PayloadType,
	})
	return nil
}

type listener struct {
	info       *ListenerInfo
	adapter    AdapterFunc
	hooks      DeliveryHooks
	classifier ErrorClassifier
	logger     loggingpkg.ServiceLogger
}

// handle feeds one Watermill message to the adapter as a single-envelope
// delivery. The subscribed topic is the event name.
func (l listener) handle(msg *message.Message) error {
	ctx := msg.Context()
	eventName := message.SubscribeTopicFromCtx(ctx)
	if eventName == "" {
		eventName = l.info.EventName
	}

	dc := DeliveryContext{
		Listener:      l.info.Name,
		EventName:     eventName,
		MessageUUID:   msg.UUID,
		CorrelationID: msg.Metadata.Get(envelopepkg.MetadataKeyCorrelationID),
		Metadata:      metadatapkg.FromWatermill(msg.Metadata),
		Context:       ctx,
		StartedAt:     time.Now(),
	}

	l.info.Stats.begin()
	l.hooks.start(dc)

	env, err := envelopepkg.FromMessage(msg)
	if err != nil {
		err = NewUnprocessableEventError(msg.Payload, err)
		l.logger.Error("Unreadable envelope", err, loggingpkg.LogFields{
			"event":        eventName,
			"message_uuid": msg.UUID,
		})
	} else {
		dc.Client = env.Client
		dc.CorrelationID = env.CorrelationID
		_, err = l.adapter(ctx, eventName, []envelopepkg.Envelope{env})
	}
	dc.Duration = time.Since(dc.StartedAt)

	l.info.Stats.finish(dc.Duration, err, l.classifier)
	l.hooks.finish(dc, err)
	return err
}

// Listeners returns a snapshot of the registered listeners.
func (s *Service) Listeners() []*ListenerInfo {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	out := make([]*ListenerInfo, len(s.listeners))
	copy(out, s.listeners)
	return out
}
