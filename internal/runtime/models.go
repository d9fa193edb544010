package runtime

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// UnprocessableEventError wraps deliveries whose envelope could not be read.
// The poison queue middleware forwards them instead of retrying.
type UnprocessableEventError struct {
	payload string
	err     error
}

// NewUnprocessableEventError wraps err together with the raw payload.
func NewUnprocessableEventError(payload []byte, err error) *UnprocessableEventError {
	return &UnprocessableEventError{payload: string(payload), err: err}
}

func (e *UnprocessableEventError) Error() string {
	return "unprocessable event: " + e.payload + " error: " + e.err.Error()
}

func (e *UnprocessableEventError) Unwrap() error {
	return e.err
}

// ErrorClassifier maps a listener failure onto an error kind for stats.
type ErrorClassifier func(error) errspkg.Kind

func defaultErrorClassifier(err error) errspkg.Kind {
	var unprocessable *UnprocessableEventError
	if errors.As(err, &unprocessable) {
		return errspkg.KindInvalidMessage
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errspkg.KindTransport
	}
	return errspkg.KindOf(err, errspkg.KindHandler)
}

// ListenerInfo describes a registered listener.
type ListenerInfo struct {
	Name        string         `json:"name"`
	EventName   string         `json:"event_name"`
	PayloadType string         `json:"payload_type"`
	Handler     string         `json:"handler"`
	Stats       *ListenerStats `json:"stats"`
}

// ListenerStats accumulates delivery outcomes for one listener.
type ListenerStats struct {
	mu sync.Mutex

	MessagesProcessed   uint64    `json:"messages_processed"`
	MessagesFailed      uint64    `json:"messages_failed"`
	InFlight            int64     `json:"in_flight"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`

	latency    *latencyWindow
	throughput *throughputWindow
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
}

// ErrorBreakdown counts failures per error kind.
type ErrorBreakdown struct {
	InvalidMessage  uint64 `json:"invalid_message"`
	HandlerContract uint64 `json:"handler_contract"`
	Transport       uint64 `json:"transport"`
	Handler         uint64 `json:"handler"`
	LastError       string `json:"last_error,omitempty"`
}

// Record counts err under kind.
func (e *ErrorBreakdown) Record(kind errspkg.Kind, err error) {
	if err == nil {
		return
	}
	switch kind {
	case errspkg.KindInvalidMessage:
		e.InvalidMessage++
	case errspkg.KindHandlerContract:
		e.HandlerContract++
	case errspkg.KindTransport:
		e.Transport++
	default:
		e.Handler++
	}
	e.LastError = err.Error()
}

func newListenerStats() *ListenerStats {
	return &ListenerStats{
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
	}
}

func (s *ListenerStats) begin() {
	s.mu.Lock()
	s.InFlight++
	s.mu.Unlock()
}

func (s *ListenerStats) finish(duration time.Duration, err error, classifier ErrorClassifier) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InFlight > 0 {
		s.InFlight--
	}
	s.MessagesProcessed++
	s.TotalProcessingTime += int64(duration)
	s.LastProcessedAt = now.UTC()

	s.latency.Add(duration)
	s.Latency = s.latency.Snapshot()
	s.Latency.AverageNs = s.TotalProcessingTime / int64(s.MessagesProcessed)

	snapshot := s.throughput.AddAndSnapshot(now)
	s.Throughput = ThroughputMetrics{
		CurrentRPS:       snapshot.CurrentRPS,
		WindowSeconds:    snapshot.WindowSeconds,
		MessagesInWindow: uint64(snapshot.Count),
	}

	if err != nil {
		s.MessagesFailed++
		if classifier == nil {
			classifier = defaultErrorClassifier
		}
		s.Errors.Record(classifier(err), err)
	}
}

// Processed returns the number of finished deliveries.
func (s *ListenerStats) Processed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MessagesProcessed
}

// MarshalJSON snapshots the stats under lock.
func (s *ListenerStats) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type plain struct {
		MessagesProcessed   uint64            `json:"messages_processed"`
		MessagesFailed      uint64            `json:"messages_failed"`
		InFlight            int64             `json:"in_flight"`
		TotalProcessingTime int64             `json:"total_processing_time_ns"`
		LastProcessedAt     time.Time         `json:"last_processed_at"`
		Latency             LatencyMetrics    `json:"latency"`
		Throughput          ThroughputMetrics `json:"throughput"`
		Errors              ErrorBreakdown    `json:"errors"`
	}
	return sonic.ConfigStd.Marshal(plain{
		MessagesProcessed:   s.MessagesProcessed,
		MessagesFailed:      s.MessagesFailed,
		InFlight:            s.InFlight,
		TotalProcessingTime: s.TotalProcessingTime,
		LastProcessedAt:     s.LastProcessedAt,
		Latency:             s.Latency,
		Throughput:          s.Throughput,
		Errors:              s.Errors,
	})
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

func percentile(sorted []int64, q float64) int64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower, upper := int(math.Floor(pos)), int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	drop := 0
	for drop < len(tw.samples) && tw.samples[drop].Before(cutoff) {
		drop++
	}
	tw.samples = append(tw.samples[:0], tw.samples[drop:]...)

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}
