package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Errors returned by Bus.
var (
	// ErrDrainTimeout is returned by Stop when queued events are still
	// being delivered at the deadline.
	ErrDrainTimeout = errors.New("events: queue not drained before deadline")

	// ErrAlreadyStarted is returned by a second Start without an intervening Stop.
	ErrAlreadyStarted = errors.New("events: bus already started")
)

// defaultQueueSize bounds the events waiting for delivery.
const defaultQueueSize = 256

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

type namedSink struct {
	name string
	sink Sink
}

type queued struct {
	ctx context.Context
	e   Event
}

// Bus delivers each event to every registered sink in registration order.
//
// Until Start is called Publish delivers inline. Once started, Publish
// only enqueues and a single goroutine owned by the bus feeds the sinks,
// so a slow sink never holds up the publisher. When the queue is full the
// event is dropped and counted. Bus implements lifecycle.Hook; Stop
// delivers whatever is still queued.
//
// Thread Safety: Publish and Add are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger Logger

	queueSize int
	runMu     sync.RWMutex // protects queue and done
	queue     chan queued
	done      chan struct{}
	dropped   atomic.Uint64
}

// NewBus creates a bus with no sinks.
func NewBus() *Bus {
	return &Bus{logger: noopLogger{}, queueSize: defaultQueueSize}
}

// SetLogger sets the logger used to report sink failures.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// SetQueueSize sets the delivery queue capacity used by the next Start.
// Values below 1 are ignored.
func (b *Bus) SetQueueSize(n int) {
	if n < 1 {
		return
	}
	b.runMu.Lock()
	b.queueSize = n
	b.runMu.Unlock()
}

// Add registers a sink under a name used in failure logs.
func (b *Bus) Add(name string, sink Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
	b.mu.Unlock()
}

// Len returns the number of registered sinks.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Name implements lifecycle.Hook.
func (b *Bus) Name() string {
	return "event-bus"
}

// Start launches the delivery goroutine.
func (b *Bus) Start(_ context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.queue != nil {
		return ErrAlreadyStarted
	}
	b.queue = make(chan queued, b.queueSize)
	b.done = make(chan struct{})
	go b.drain(b.queue, b.done)
	return nil
}

// Stop closes the queue and waits, bounded by ctx, for the events still
// in it to reach the sinks. Events published after Stop are delivered
// inline.
func (b *Bus) Stop(ctx context.Context) error {
	b.runMu.Lock()
	queue, done := b.queue, b.done
	b.queue, b.done = nil, nil
	if queue != nil {
		close(queue)
	}
	b.runMu.Unlock()

	if queue == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d event(s) pending: %w", ErrDrainTimeout, len(queue), ctx.Err())
	}
}

// Publish hands e to the sinks. Sink errors are logged and swallowed.
// A nil Bus discards events.
//
// Delivery runs with ctx's values but not its cancellation, so an event
// published at the end of a request still reaches every sink.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	b.runMu.RLock()
	if b.queue != nil {
		select {
		case b.queue <- queued{ctx: ctx, e: e}:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event queue full, dropping event",
				"event", e.Type,
				"dropped_total", n,
			)
		}
		b.runMu.RUnlock()
		return
	}
	b.runMu.RUnlock()

	b.deliver(ctx, e)
}

func (b *Bus) drain(queue <-chan queued, done chan<- struct{}) {
	defer close(done)
	for q := range queue {
		b.deliver(q.ctx, q.e)
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	b.mu.RLock()
	sinks := make([]namedSink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.sink.Publish(ctx, e); err != nil {
			b.logger.Warn("event sink failed",
				"sink", s.name,
				"event", e.Type,
				"error", err,
			)
		}
	}
}
