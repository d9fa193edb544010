// Package transport builds the Watermill publisher and subscriber pair a
// service runs on.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protoevents/internal/runtime/config"
	registry "github.com/drblury/protoevents/transport"

	// Built-in transports register themselves on import.
	_ "github.com/drblury/protoevents/transport/transports"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves, skipping the subscriber when it is the publisher.
func (t Transport) Close() error {
	return registry.Transport{Publisher: t.Publisher, Subscriber: t.Subscriber}.Close()
}

// Factory builds the transport for a configuration.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

// Build implements Factory.
func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports from the registry, keyed by PubSubSystem.
func DefaultFactory() Factory {
	return FactoryFunc(func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		if conf == nil {
			return Transport{}, fmt.Errorf("config is required")
		}
		built, err := registry.Build(ctx, conf, logger)
		if err != nil {
			return Transport{}, err
		}
		return Transport{Publisher: built.Publisher, Subscriber: built.Subscriber}, nil
	})
}

// Capabilities reports what the configured transport supports.
func Capabilities(conf *config.Config) registry.Capabilities {
	if conf == nil {
		return registry.Capabilities{}
	}
	return registry.DefaultRegistry.GetCapabilities(conf.PubSubSystem)
}
