// Package jetstream registers a NATS JetStream transport. All routing keys
// share one stream; every client identifier gets a durable pull consumer per
// routing key, so service instances split deliveries and redeliveries
// survive restarts.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/protoevents/internal/runtime/ids"
	"github.com/drblury/protoevents/transport"
)

const TransportName = "nats-jetstream"

const (
	DefaultStreamName = "PROTOEVENTS"
	DefaultMaxDeliver = 3
	DefaultAckWait    = 30 * time.Second
	DefaultMaxAge     = 7 * 24 * time.Hour
	fetchBatch        = 10
)

var ErrClosed = errors.New("jetstream transport is closed")

func init() {
	Register()
}

// Register adds the JetStream transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{
		URL:        cfg.GetNATSURL(),
		StreamName: cfg.GetNATSStreamName(),
		Client:     cfg.GetClient(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: t, Subscriber: t}, nil
}

func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

type Config struct {
	URL        string
	StreamName string
	// Client names the durable consumers.
	Client     string
	MaxDeliver int
	AckWait    time.Duration
	Replicas   int
	// RetentionPolicy is "limits" (default), "interest" or "workqueue".
	RetentionPolicy string
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) streamConfig() *nats.StreamConfig {
	streamCfg := &nats.StreamConfig{
		Name:     c.StreamName,
		Subjects: []string{c.StreamName + ".>"},
		MaxAge:   DefaultMaxAge,
		Replicas: c.Replicas,
	}
	switch c.RetentionPolicy {
	case "interest":
		streamCfg.Retention = nats.InterestPolicy
	case "workqueue":
		streamCfg.Retention = nats.WorkQueuePolicy
	default:
		streamCfg.Retention = nats.LimitsPolicy
	}
	return streamCfg
}

// Subject maps a routing key into the stream's subject space.
func (c Config) Subject(routingKey string) string {
	return c.StreamName + "." + routingKey
}

// ConsumerName is the durable consumer a client reads a routing key with.
// Durable names may not contain subject tokens, so dots become underscores.
func (c Config) ConsumerName(routingKey string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	name := replacer.Replace(routingKey)
	if c.Client != "" {
		name = replacer.Replace(c.Client) + "__" + name
	}
	return name
}

// Transport implements message.Publisher and message.Subscriber over JetStream.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subMu         sync.Mutex
	subscriptions []*nats.Subscription

	closeOnce sync.Once
	closing   chan struct{}
}

func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	t := &Transport{nc: nc, js: js, config: cfg, logger: logger, closing: make(chan struct{})}
	if err := t.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) ensureStream() error {
	streamCfg := t.config.streamConfig()
	if _, err := t.js.AddStream(streamCfg); err == nil {
		return nil
	}
	if _, err := t.js.UpdateStream(streamCfg); err != nil {
		return fmt.Errorf("ensure stream %s: %w", streamCfg.Name, err)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Publish writes each message to the routing key's subject. The Nats-Msg-Id
// header carries the message UUID so the stream drops duplicate publishes.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}
	subject := t.config.Subject(topic)
	for _, msg := range messages {
		if _, err := t.js.PublishMsg(toNATSMsg(subject, msg)); err != nil {
			return fmt.Errorf("publish %s to jetstream: %w", topic, err)
		}
	}
	return nil
}

// Subscribe creates or updates the client's durable consumer for topic and
// pulls messages until ctx is cancelled or the transport closes.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	subject := t.config.Subject(topic)
	durable := t.config.ConsumerName(topic)

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    t.config.MaxDeliver,
		AckWait:       t.config.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	if _, err := t.js.AddConsumer(t.config.StreamName, consumerCfg); err != nil {
		if _, err := t.js.UpdateConsumer(t.config.StreamName, consumerCfg); err != nil {
			return nil, fmt.Errorf("ensure consumer %s: %w", durable, err)
		}
	}

	sub, err := t.js.PullSubscribe(subject, durable, nats.Bind(t.config.StreamName, durable))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	t.subMu.Lock()
	t.subscriptions = append(t.subscriptions, sub)
	t.subMu.Unlock()

	output := make(chan *message.Message)
	go t.consume(ctx, sub, output, topic)
	return output, nil
}

func (t *Transport) consume(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)
	logFields := watermill.LogFields{"topic": topic, "consumer": t.config.ConsumerName(topic)}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closing:
			return
		default:
		}

		batch, err := sub.Fetch(fetchBatch, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			t.logger.Error("JetStream fetch failed", err, logFields)
			continue
		}

		for _, natsMsg := range batch {
			if !t.deliver(ctx, fromNATSMsg(natsMsg), natsMsg, output, logFields) {
				return
			}
		}
	}
}

// deliver hands msg to the router and mirrors its ack or nack to JetStream.
// It reports false when consumption must stop.
func (t *Transport) deliver(ctx context.Context, msg *message.Message, natsMsg *nats.Msg, output chan<- *message.Message, logFields watermill.LogFields) bool {
	msgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msg.SetContext(msgCtx)

	select {
	case output <- msg:
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}

	select {
	case <-msg.Acked():
		if err := natsMsg.Ack(); err != nil {
			t.logger.Error("JetStream ack failed", err, logFields)
		}
	case <-msg.Nacked():
		if err := natsMsg.Nak(); err != nil {
			t.logger.Error("JetStream nak failed", err, logFields)
		}
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}
	return true
}

func toNATSMsg(subject string, msg *message.Message) *nats.Msg {
	header := nats.Header{}
	for key, value := range msg.Metadata {
		header.Set(key, value)
	}
	if msg.UUID != "" {
		header.Set(nats.MsgIdHdr, msg.UUID)
	}
	return &nats.Msg{Subject: subject, Data: msg.Payload, Header: header}
}

func fromNATSMsg(natsMsg *nats.Msg) *message.Message {
	id := natsMsg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = ids.New()
	}
	msg := message.NewMessage(id, natsMsg.Data)
	for key, values := range natsMsg.Header {
		if key == nats.MsgIdHdr || len(values) == 0 {
			continue
		}
		msg.Metadata.Set(key, values[0])
	}
	return msg
}

// Close stops every consumer loop and closes the connection. It is safe to
// call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)

		t.subMu.Lock()
		for _, sub := range t.subscriptions {
			if err := sub.Unsubscribe(); err != nil {
				t.logger.Debug("JetStream unsubscribe failed", watermill.LogFields{"error": err.Error()})
			}
		}
		t.subscriptions = nil
		t.subMu.Unlock()

		t.nc.Close()
	})
	return nil
}

func (t *Transport) Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
