package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

// Metric label values.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"

	OutcomeSuccess = "success"
)

// DispatchMetrics records publish and delivery outcomes in Prometheus and
// keeps per routing key totals for the web UI. It implements MetricsRecorder.
type DispatchMetrics struct {
	mu   sync.RWMutex
	keys map[string]*DispatchKeyMetrics

	messagesTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// DispatchKeyMetrics holds totals for one direction and routing key.
type DispatchKeyMetrics struct {
	Direction string    `json:"direction"`
	Key       string    `json:"key"`
	Succeeded uint64    `json:"succeeded"`
	Failed    uint64    `json:"failed"`
	LastError string    `json:"last_error,omitempty"`
	LastAt    time.Time `json:"last_at"`
}

// DispatchMetricsSnapshot is a point-in-time copy of all totals.
type DispatchMetricsSnapshot struct {
	Keys        []DispatchKeyMetrics `json:"keys"`
	CollectedAt time.Time            `json:"collected_at"`
}

// NewDispatchMetrics creates the collectors. Call Register before use with
// a shared registry.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &DispatchMetrics{
		keys:       make(map[string]*DispatchKeyMetrics),
		registerer: registerer,
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protoevents",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Published and delivered envelopes by routing key and outcome.",
		}, []string{"direction", "key", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "protoevents",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent publishing or handling an envelope.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction", "key"}),
	}
}

// Register registers the collectors. Calling it again is a no-op, and
// collectors already present in the registry are reused.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	var err error
	if m.messagesTotal, err = registerCollector(m.registerer, m.messagesTotal); err != nil {
		return err
	}
	if m.duration, err = registerCollector(m.registerer, m.duration); err != nil {
		return err
	}
	m.registered = true
	return nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// ObservePublish implements MetricsRecorder.
func (m *DispatchMetrics) ObservePublish(routingKey string, elapsed time.Duration, err error) {
	m.observe(DirectionOutgoing, routingKey, elapsed, err, errspkg.KindTransport)
}

// ObserveDelivery implements MetricsRecorder.
func (m *DispatchMetrics) ObserveDelivery(eventName string, elapsed time.Duration, err error) {
	m.observe(DirectionIncoming, eventName, elapsed, err, errspkg.KindHandler)
}

func (m *DispatchMetrics) observe(direction, key string, elapsed time.Duration, err error, fallback errspkg.Kind) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(errspkg.KindOf(err, fallback))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messagesTotal.WithLabelValues(direction, key, outcome).Inc()
	m.duration.WithLabelValues(direction, key).Observe(elapsed.Seconds())

	id := direction + "|" + key
	totals, ok := m.keys[id]
	if !ok {
		totals = &DispatchKeyMetrics{Direction: direction, Key: key}
		m.keys[id] = totals
	}
	totals.LastAt = time.Now().UTC()
	if err != nil {
		totals.Failed++
		totals.LastError = err.Error()
		return
	}
	totals.Succeeded++
}

// Snapshot copies the per key totals.
func (m *DispatchMetrics) Snapshot() DispatchMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := DispatchMetricsSnapshot{
		Keys:        make([]DispatchKeyMetrics, 0, len(m.keys)),
		CollectedAt: time.Now().UTC(),
	}
	for _, totals := range m.keys {
		snapshot.Keys = append(snapshot.Keys, *totals)
	}
	return snapshot
}

// Totals returns the totals for one direction and key, or nil.
func (m *DispatchMetrics) Totals(direction, key string) *DispatchKeyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if totals, ok := m.keys[direction+"|"+key]; ok {
		copied := *totals
		return &copied
	}
	return nil
}

// Reset clears all totals and collector values.
func (m *DispatchMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = make(map[string]*DispatchKeyMetrics)
	m.messagesTotal.Reset()
	m.duration.Reset()
}
