package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the slice of Redis Pub/Sub the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
}

// RedisMessage is one message received from a subscription.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "studyhub:events".
	ChannelName string

	// InstanceID tags outgoing events so this instance skips its own echo.
	// A random ID when empty.
	InstanceID string

	// PublishTimeout bounds the Redis round-trip of one Publish. Default 500ms.
	PublishTimeout time.Duration

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// RedisEventBus delivers every event locally and forwards it to the other
// worker instances over one Pub/Sub channel. A Redis outage costs remote
// delivery only.
type RedisEventBus struct {
	client         RedisClient
	local          *InMemoryEventBus
	channel        string
	origin         string
	publishTimeout time.Duration
	log            *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRedisEventBus subscribes to the channel and starts forwarding remote
// events to local handlers.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "studyhub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = "worker-" + uuid.NewString()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:         config.Client,
		local:          NewInMemoryEventBus(config.LocalBusConfig),
		channel:        config.ChannelName,
		origin:         config.InstanceID,
		publishTimeout: config.PublishTimeout,
		log:            config.Logger.With(logger.Component("redis_eventbus"), logger.String("instance", config.InstanceID)),
		ctx:            ctx,
		cancel:         cancel,
	}

	messages, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}
	b.wg.Add(1)
	go b.receive(messages)

	return b, nil
}

// Subscribe registers a local handler for one event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a local handler for every event type.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish forwards event to Redis within PublishTimeout, then delivers it
// locally. A failed or slow forward is logged and does not fail the call.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	if data, err := encodeWire(b.origin, event); err != nil {
		b.log.Error("failed to encode event", logger.String("event_type", string(event.EventType())), logger.Err(err))
	} else {
		ctx, cancel := context.WithTimeout(b.ctx, b.publishTimeout)
		err = b.client.Publish(ctx, b.channel, data)
		cancel()
		if err != nil {
			b.log.Warn("failed to forward event to redis",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}

	return b.local.Publish(event)
}

func (b *RedisEventBus) receive(messages <-chan RedisMessage) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}
			event, origin, err := decodeWire(msg.Payload)
			if err != nil {
				b.log.Warn("dropping undecodable event", logger.Err(err))
				continue
			}
			if origin == b.origin {
				continue
			}
			if err := b.local.Publish(event); err != nil {
				b.log.Error("failed to deliver remote event", logger.Err(err))
			}
		}
	}
}

// Close stops the subscriber and drains the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.local.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire format
// ─────────────────────────────────────────────────────────────────────────────

// wireEvent is the shared envelope plus the publishing instance.
type wireEvent struct {
	Origin string `json:"origin"`
	shared.EventEnvelope
}

func encodeWire(origin string, event shared.Event) (string, error) {
	env, err := shared.NewEventEnvelope(event)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(wireEvent{Origin: origin, EventEnvelope: env})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeWire(data string) (shared.Event, string, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, "", err
	}
	var payload map[string]interface{}
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return nil, "", fmt.Errorf("event %s payload: %w", w.ID, err)
		}
	}
	return remoteEvent{env: w.EventEnvelope, payload: payload}, w.Origin, nil
}

// remoteEvent is an event decoded from another instance.
type remoteEvent struct {
	env     shared.EventEnvelope
	payload map[string]interface{}
}

func (e remoteEvent) EventID() string                 { return e.env.ID }
func (e remoteEvent) EventType() shared.EventType     { return e.env.Type }
func (e remoteEvent) AggregateID() string             { return e.env.AggregateID }
func (e remoteEvent) OccurredAt() time.Time           { return e.env.Timestamp }
func (e remoteEvent) Payload() map[string]interface{} { return e.payload }
