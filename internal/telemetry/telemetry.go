// Package telemetry delivers conversion events to pluggable sinks.
//
// Delivery is best effort: sinks must not block the conversion and their
// failures never surface to the caller.
package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Event categories.
const (
	CategoryErrorCause = "error_cause"
)

// Sink receives telemetry events. SendEvent is called on the conversion
// path and must return promptly; wrap slow sinks in Async.
type Sink interface {
	SendEvent(category, payload string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(category, payload string)

// SendEvent implements Sink.
func (f SinkFunc) SendEvent(category, payload string) { f(category, payload) }

// PrometheusSink counts events by category and payload.
type PrometheusSink struct {
	events *prometheus.CounterVec
}

// NewPrometheusSink creates a sink and registers its collector with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphlower_telemetry_events_total",
				Help: "Total number of telemetry events per category and payload",
			},
			[]string{"category", "payload"},
		),
	}
	if err := reg.Register(s.events); err != nil {
		return nil, err
	}
	return s, nil
}

// SendEvent implements Sink.
func (s *PrometheusSink) SendEvent(category, payload string) {
	s.events.WithLabelValues(category, payload).Inc()
}

// Counter exposes the underlying collector, mostly for tests.
func (s *PrometheusSink) Counter() *prometheus.CounterVec {
	return s.events
}

// LogSink writes events to a logger.
type LogSink struct {
	logger logr.Logger
}

// NewLogSink creates a sink logging at verbosity 1.
func NewLogSink(logger logr.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// SendEvent implements Sink.
func (s *LogSink) SendEvent(category, payload string) {
	s.logger.V(1).Info("Telemetry event", "category", category, "payload", payload)
}

// Multi fans events out to several sinks. A panicking sink does not keep
// the event from the ones after it.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(category, payload string) {
		for _, s := range sinks {
			sendSafely(s, category, payload)
		}
	})
}

func sendSafely(s Sink, category, payload string) {
	defer func() {
		_ = recover()
	}()
	s.SendEvent(category, payload)
}

type event struct {
	category string
	payload  string
}

// Async delivers events from a background goroutine. SendEvent never
// blocks; events arriving while the buffer is full are dropped and counted.
type Async struct {
	sink    Sink
	events  chan event
	done    chan struct{}
	dropped atomic.Int64
	logger  logr.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts delivering to sink with a buffer of the given size.
func NewAsync(sink Sink, buffer int, logger logr.Logger) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		sink:   sink,
		events: make(chan event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		a.deliver(ev)
	}
}

func (a *Async) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(nil, "Telemetry sink panicked", "category", ev.category, "panic", r)
		}
	}()
	a.sink.SendEvent(ev.category, ev.payload)
}

// SendEvent implements Sink.
func (a *Async) SendEvent(category, payload string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.events <- event{category: category, payload: payload}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events that were not delivered.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
