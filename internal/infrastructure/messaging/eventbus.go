// Package messaging delivers domain events between the ledger, the session
// orchestrator and the ops surface. InMemoryEventBus serves one process;
// RedisEventBus adds fan-out to other worker instances.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// anyEvent keys handlers registered with SubscribeAll.
const anyEvent shared.EventType = "*"

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on goroutines so Publish never waits on them.
	AsyncMode bool

	// WorkerPoolSize caps concurrently running async handlers. Default 10.
	WorkerPoolSize int

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// InMemoryEventBus dispatches events to handlers in this process.
// Handler errors and panics are logged and never reach the publisher.
type InMemoryEventBus struct {
	async   bool
	slots   chan struct{}
	log     *logger.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler
	closed   bool
	inflight sync.WaitGroup
}

// NewInMemoryEventBus creates a bus. With AsyncMode off, handlers run on
// the publishing goroutine in subscription order.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		async:    config.AsyncMode,
		slots:    make(chan struct{}, config.WorkerPoolSize),
		log:      config.Logger.With(logger.Component("eventbus")),
		metrics:  config.Metrics,
		handlers: make(map[shared.EventType][]shared.EventHandler),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(anyEvent, handler)
}

func (b *InMemoryEventBus) subscribe(key shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[key] = append(b.handlers[key], handler)
	return nil
}

// Publish delivers event to typed handlers first, then catch-all ones.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed, all := b.handlers[event.EventType()], b.handlers[anyEvent]
	targets := make([]shared.EventHandler, 0, len(typed)+len(all))
	targets = append(append(targets, typed...), all...)
	if b.async {
		// Counted under the lock so Close cannot miss them.
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(string(event.EventType()))

	for _, h := range targets {
		if b.async {
			go b.runAsync(event, h)
			continue
		}
		b.run(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) runAsync(event shared.Event, h shared.EventHandler) {
	defer b.inflight.Done()
	b.slots <- struct{}{}
	defer func() { <-b.slots }()
	b.run(event, h)
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := safeCall(event, h)
	b.metrics.RecordHandler(string(event.EventType()), time.Since(start), err)
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("event_id", event.EventID()),
			logger.Err(err),
		)
	}
}

func safeCall(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close refuses new events and waits for queued async handlers to finish.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}
