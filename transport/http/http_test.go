package http

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protoevents/transport"
	"github.com/drblury/protoevents/transport/transporttest"
)

type startingSubscriber struct {
	transporttest.Subscriber
	started chan struct{}
}

func (s *startingSubscriber) StartHTTPServer() error {
	close(s.started)
	return nil
}

func stubFactories(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) *watermillhttp.PublisherConfig {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = originalPub, originalSub
	})

	var pubCfg watermillhttp.PublisherConfig
	PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return pub, pubErr
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return sub, subErr
	}
	return &pubCfg
}

func TestRegisteredOnImport(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
}

func TestTopicURL(t *testing.T) {
	assert.Equal(t, "http://events.local/billing.invoice_paid", TopicURL("http://events.local/", "billing.invoice_paid"))
	assert.Equal(t, "http://events.local/billing.invoice_paid", TopicURL("http://events.local", "/billing.invoice_paid"))
}

func TestBuildRoutesPublishesByTopicAndStartsServer(t *testing.T) {
	pub := &transporttest.Publisher{}
	sub := &startingSubscriber{started: make(chan struct{})}
	pubCfg := stubFactories(t, pub, nil, sub, nil)

	built, err := Build(context.Background(), &transporttest.Config{
		HTTPServerAddress: ":8080",
		HTTPPublisherURL:  "http://localhost:8080",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, built.Publisher)

	<-sub.started

	req, err := pubCfg.MarshalMessageFunc("billing.invoice_paid", message.NewMessage("id-1", []byte(`{"client":"billing"}`)))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/billing.invoice_paid", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"client":"billing"}`, string(body))
}

func TestBuildErrors(t *testing.T) {
	cfg := &transporttest.Config{HTTPServerAddress: ":8080", HTTPPublisherURL: "http://localhost:8080"}

	t.Run("missing addresses", func(t *testing.T) {
		stubFactories(t, nil, nil, nil, nil)
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		require.ErrorContains(t, err, "are required")
	})

	t.Run("publisher", func(t *testing.T) {
		stubFactories(t, nil, errors.New("publisher error"), nil, nil)
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber", func(t *testing.T) {
		pub := &transporttest.Publisher{}
		stubFactories(t, pub, nil, nil, errors.New("subscriber error"))
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.ErrorContains(t, err, "subscriber error")
		assert.True(t, pub.Closed)
	})
}
