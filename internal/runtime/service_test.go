package runtime

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	configpkg "github.com/drblury/protoevents/internal/runtime/config"
	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
	transportpkg "github.com/drblury/protoevents/internal/runtime/transport"
)

func TestTryNewServiceRequiresConfigAndLogger(t *testing.T) {
	_, err := TryNewService(nil, newTestLogger(), context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = TryNewService(newTestConfig(), nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestTryNewServiceRejectsInvalidConfig(t *testing.T) {
	conf := &configpkg.Config{PubSubSystem: "kafka", Codec: "xml"}

	_, err := TryNewService(conf, newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory: staticFactory(&testPublisher{}, &testSubscriber{}),
	})

	var cfgErr errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "kafka: brokers are required")
	assert.ErrorIs(t, err, errspkg.ErrUnknownCodec)
}

func TestTryNewServiceWrapsFactoryError(t *testing.T) {
	failure := errors.New("dial tcp: refused")
	factory := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, failure
	})

	_, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{TransportFactory: factory})
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "build channel transport")
}

func TestNewServicePanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		NewService(nil, newTestLogger(), context.Background(), ServiceDependencies{})
	})
}

func TestTryNewServiceWithDefaultFactory(t *testing.T) {
	svc, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.NotNil(t, svc.publisher)
	assert.NotNil(t, svc.subscriber)
	assert.NotNil(t, svc.Dispatcher())
	assert.Nil(t, svc.DispatchMetrics())
}

func TestServicePublishUsesServiceScope(t *testing.T) {
	svc, pub, log := newTestService(t)

	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("hi"), nil))

	envs := pub.Envelopes(t, stringValueKey)
	require.Len(t, envs, 1)
	assert.Equal(t, "billing", envs[0].Client)
	assert.Nil(t, envs[0].Headers)
	assert.Len(t, log.Matching(loggingpkg.OutgoingMessage), 1)
}

func TestServicePublishScoped(t *testing.T) {
	svc, pub, _ := newTestService(t)

	headers := metadatapkg.New("tenant", "acme")
	require.NoError(t, svc.PublishScoped(context.Background(), "crm", wrapperspb.String("hi"), headers))

	envs := pub.Envelopes(t, "crm.google.protobuf.string_value")
	require.Len(t, envs, 1)
	assert.Equal(t, metadatapkg.Headers{"tenant": "acme"}, envs[0].Headers)
}

func TestServicePublishReturnsTransportError(t *testing.T) {
	failure := errors.New("broker down")
	log := newTestLogger()
	svc, err := TryNewService(newTestConfig(), log, context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(&testPublisher{err: failure}, &testSubscriber{}),
		DisableDefaultMiddlewares: true,
	})
	require.NoError(t, err)

	assert.Same(t, failure, svc.Publish(context.Background(), wrapperspb.String("hi"), nil))

	records := log.Matching(loggingpkg.OutgoingMessage)
	require.Len(t, records, 1)
	assert.Equal(t, loggingpkg.LevelError, records[0].level)
}

func TestServiceDisableCommunicationLogs(t *testing.T) {
	log := newTestLogger()
	svc, err := TryNewService(newTestConfig(), log, context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(&testPublisher{}, &testSubscriber{}),
		DisableDefaultMiddlewares: true,
		DisableCommunicationLogs:  true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("hi"), nil))
	assert.Empty(t, log.Matching(loggingpkg.OutgoingMessage))
}

func TestServiceMetricsEnabled(t *testing.T) {
	conf := newTestConfig()
	conf.MetricsEnabled = true
	conf.MetricsPort = 9464
	svc, err := TryNewService(conf, newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory:  staticFactory(&testPublisher{}, &testSubscriber{}),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, svc.DispatchMetrics())

	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("hi"), nil))

	totals := svc.DispatchMetrics().Totals(DirectionOutgoing, stringValueKey)
	require.NotNil(t, totals)
	assert.Equal(t, uint64(1), totals.Succeeded)
	assert.Contains(t, svc.httpServers, 9464)
}

func TestServiceClose(t *testing.T) {
	pub := &testPublisher{}
	sub := &testSubscriber{}
	svc, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(pub, sub),
		DisableDefaultMiddlewares: true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
	assert.True(t, sub.closed)
}

func TestServiceStartRunsRouter(t *testing.T) {
	svc, _, _ := newTestService(t)

	sentinel := errors.New("router stopped")
	var ran *message.Router
	orig := routerRun
	routerRun = func(router *message.Router, _ context.Context) error {
		ran = router
		return sentinel
	}
	t.Cleanup(func() { routerRun = orig })

	assert.Same(t, sentinel, svc.Start(context.Background()))
	assert.Same(t, svc.router, ran)
}

func TestServiceRegisterHTTPHandler(t *testing.T) {
	svc, _, _ := newTestService(t)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	svc.RegisterHTTPHandler(9000, "/a", ok)
	svc.RegisterHTTPHandler(9000, "/b", ok)
	svc.RegisterHTTPHandler(9001, "/a", ok)

	assert.Len(t, svc.httpServers, 2)
}

type received struct {
	value   string
	client  string
	headers metadatapkg.Headers
}

type inboxListener struct {
	out     chan<- received
	client  string
	headers metadatapkg.Headers
}

func (l *inboxListener) SetClient(client string) { l.client = client }

func (l *inboxListener) SetHeaders(headers metadatapkg.Headers) { l.headers = headers }

func (l *inboxListener) Handle(msg *wrapperspb.StringValue) error {
	l.out <- received{value: msg.GetValue(), client: l.client, headers: l.headers}
	return nil
}

func TestServiceEndToEnd(t *testing.T) {
	log := newTestLogger()
	svc, err := TryNewService(newTestConfig(), log, context.Background(), ServiceDependencies{
		TransportFactory:  gochannelFactory(),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	inbox := make(chan received, 2)
	require.NoError(t, RegisterListener(svc, ListenerRegistration{
		Handler: HandlerFactory(func() any { return &inboxListener{out: inbox} }),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = svc.Close()
	})

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("plain"), nil))
	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("tagged"), metadatapkg.New("tenant", "acme")))

	got := map[string]received{}
	for len(got) < 2 {
		select {
		case r := <-inbox:
			got[r.value] = r
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for deliveries, got %v", got)
		}
	}

	assert.Equal(t, "billing", got["plain"].client)
	assert.Nil(t, got["plain"].headers)
	assert.Equal(t, "billing", got["tagged"].client)
	assert.Equal(t, metadatapkg.Headers{"tenant": "acme"}, got["tagged"].headers)

	require.Eventually(t, func() bool {
		return svc.Listeners()[0].Stats.Processed() == 2 && len(log.Matching(loggingpkg.IncomingMessage)) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
