package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/proto"

	configpkg "github.com/drblury/protoevents/internal/runtime/config"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	handlerpkg "github.com/drblury/protoevents/internal/runtime/handlers"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
	transportpkg "github.com/drblury/protoevents/internal/runtime/transport"
)

const httpShutdownTimeout = 5 * time.Second

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds optional collaborators. Zero values select the
// defaults.
type ServiceDependencies struct {
	TransportFactory transportpkg.Factory
	// Formatter shapes communication records. Defaults to logging.DefaultFormatter.
	Formatter loggingpkg.Formatter
	// DisableCommunicationLogs turns off the per-message publish and delivery records.
	DisableCommunicationLogs bool
	// Middlewares are appended after the default chain.
	Middlewares               []MiddlewareRegistration
	DisableDefaultMiddlewares bool
	ErrorClassifier           ErrorClassifier
	// MetricsRegisterer defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
	// Resolver defaults to the process-wide handler resolver.
	Resolver *handlerpkg.Resolver
	// Hooks run around every listener delivery.
	Hooks DeliveryHooks
}

// Service wires a transport, a Watermill router with its middleware chain and
// a Dispatcher publishing through that transport.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	dispatcher      *Dispatcher
	dispatchMetrics *DispatchMetrics
	registerer      prometheus.Registerer

	listeners   []*ListenerInfo
	listenersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
	hooks           DeliveryHooks
}

// NewService is TryNewService that panics on error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	svc, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return svc
}

// TryNewService validates conf, builds the transport and router, and
// prepares the dispatcher. Register listeners before calling Start.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"client":        conf.Client,
		"config":        conf,
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		errorClassifier: deps.ErrorClassifier,
		hooks:           deps.Hooks,
		registerer:      deps.MetricsRegisterer,
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	built, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	s.publisher = built.Publisher
	s.subscriber = built.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.buildDispatcher(deps); err != nil {
		return nil, err
	}
	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) buildDispatcher(deps ServiceDependencies) error {
	codec, err := s.Conf.PayloadCodec()
	if err != nil {
		return err
	}
	level, err := s.Conf.LogLevel()
	if err != nil {
		return err
	}
	transport, err := NewWatermillTransport(s.publisher)
	if err != nil {
		return err
	}

	opts := []DispatcherOption{WithResolver(deps.Resolver)}
	if !deps.DisableCommunicationLogs {
		formatter := deps.Formatter
		if formatter == nil {
			formatter = loggingpkg.NewDefaultFormatter()
		}
		opts = append(opts, WithLogger(s.Logger), WithFormatter(formatter))
	}
	if s.Conf.MetricsEnabled {
		s.dispatchMetrics = NewDispatchMetrics(s.registerer)
		if err := s.dispatchMetrics.Register(); err != nil {
			return fmt.Errorf("register dispatch metrics: %w", err)
		}
		opts = append(opts, WithMetrics(s.dispatchMetrics))
	}

	s.dispatcher, err = NewDispatcher(DispatcherConfig{
		Transport: transport,
		Client:    s.Conf.Client,
		Codec:     codec,
		LogLevel:  level,
	}, opts...)
	return err
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Start serves the HTTP endpoints and runs the router until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.StartWebUIServer()
	s.startHTTPServers(ctx)
	return routerRun(s.router, ctx)
}

// Running is closed once the router is consuming.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and closes the transport.
func (s *Service) Close() error {
	err := s.router.Close()
	return errors.Join(err, transportpkg.Transport{Publisher: s.publisher, Subscriber: s.subscriber}.Close())
}

// Publish sends msg under the configured service scope.
func (s *Service) Publish(ctx context.Context, msg proto.Message, headers metadatapkg.Headers) error {
	return s.dispatcher.Publish(ctx, s.Conf.Service, msg, headers)
}

// PublishScoped sends msg under an explicit routing scope.
func (s *Service) PublishScoped(ctx context.Context, scope string, msg proto.Message, headers metadatapkg.Headers) error {
	return s.dispatcher.Publish(ctx, scope, msg, headers)
}

// Dispatcher exposes the service dispatcher for adapting listeners to a
// different event bus.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// DispatchMetrics is nil unless metrics are enabled.
func (s *Service) DispatchMetrics() *DispatchMetrics {
	return s.dispatchMetrics
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// start with the service.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": server.Addr})
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}
}
