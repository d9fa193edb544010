package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/protoevents/internal/runtime/config"
	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	loggingpkg "github.com/drblury/protoevents/internal/runtime/logging"
	transportpkg "github.com/drblury/protoevents/internal/runtime/transport"
)

type logEntry struct {
	level  loggingpkg.Level
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type logSink struct {
	mu      sync.Mutex
	entries []logEntry
}

// recordingLogger captures every record, including those written by
// loggers derived through With.
type recordingLogger struct {
	sink   *logSink
	fields loggingpkg.LogFields
}

func newTestLogger() *recordingLogger {
	return &recordingLogger{sink: &logSink{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{sink: l.sink, fields: merged}
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record(loggingpkg.LevelDebug, msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record(loggingpkg.LevelInfo, msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record(loggingpkg.LevelError, msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record(loggingpkg.LevelTrace, msg, nil, fields)
}

func (l *recordingLogger) record(level loggingpkg.Level, msg string, err error, fields loggingpkg.LogFields) {
	merged := make(loggingpkg.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) Entries() []logEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]logEntry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// Matching returns the entries logged with msg.
func (l *recordingLogger) Matching(msg string) []logEntry {
	var out []logEntry
	for _, e := range l.Entries() {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

type testPublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message
	err       error
	closed    bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][]*message.Message)
	}
	p.published[topic] = append(p.published[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*message.Message, len(p.published[topic]))
	copy(out, p.published[topic])
	return out
}

// Envelopes decodes the envelopes published on topic.
func (p *testPublisher) Envelopes(t *testing.T, topic string) []envelopepkg.Envelope {
	t.Helper()
	var out []envelopepkg.Envelope
	for _, msg := range p.Messages(topic) {
		env, err := envelopepkg.FromMessage(msg)
		if err != nil {
			t.Fatalf("published message is not an envelope: %v", err)
		}
		out = append(out, env)
	}
	return out
}

type testSubscriber struct {
	err    error
	closed bool
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed = true
	return nil
}

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem: "channel",
		Client:       "billing",
		Service:      "svc",
	}
}

func staticFactory(pub message.Publisher, sub message.Subscriber) transportpkg.Factory {
	return transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Publisher: pub, Subscriber: sub}, nil
	})
}

func gochannelFactory() transportpkg.Factory {
	return transportpkg.FactoryFunc(func(_ context.Context, _ *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
		ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, logger)
		return transportpkg.Transport{Publisher: ps, Subscriber: ps}, nil
	})
}

// newTestService builds a service on a recording publisher with the default
// middlewares disabled so failures are not retried.
func newTestService(t *testing.T) (*Service, *testPublisher, *recordingLogger) {
	t.Helper()
	pub := &testPublisher{}
	log := newTestLogger()
	svc, err := TryNewService(newTestConfig(), log, context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(pub, &testSubscriber{}),
		DisableDefaultMiddlewares: true,
		MetricsRegisterer:         prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("TryNewService: %v", err)
	}
	return svc, pub, log
}
