package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"checkout/internal/shared/events"
)

const (
	busBufferSize      = 128
	busDeliveryRetries = 5
	busRedeliveryDelay = 50 * time.Millisecond
)

type delivery struct {
	messageType string
	event       events.Event
}

type subscription struct {
	group string
	ch    chan delivery
}

// Bus is the in-process event transport used by local runs and tests. It
// keeps the broker contract the consumers are written against: at-least-once
// delivery per consumer group, with bounded redelivery on handler error.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	logger      *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

func (b *Bus) Publish(ctx context.Context, messageType string, event events.Event) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[messageType]...)
	b.mu.RUnlock()

	// Blocking send: the outbox already guarantees durability, so the bus
	// must never drop on backpressure.
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- delivery{messageType: messageType, event: event}:
		}
	}

	b.logger.Debug("event published",
		"event", "bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"message_type", messageType,
		"message_id", event.Meta().MessageID,
		"subscriber_count", len(subs),
	)
	return nil
}

func (b *Bus) Subscribe(
	ctx context.Context,
	messageType string,
	consumerGroup string,
	handler func(context.Context, events.Event) error,
) error {
	sub := subscription{group: consumerGroup, ch: make(chan delivery, busBufferSize)}

	b.mu.Lock()
	b.subscribers[messageType] = append(b.subscribers[messageType], sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(messageType, sub.ch)
				return
			case item := <-sub.ch:
				b.deliver(ctx, consumerGroup, item, handler)
			}
		}
	}()
	return nil
}

func (b *Bus) deliver(ctx context.Context, group string, item delivery, handler func(context.Context, events.Event) error) {
	var err error
	for attempt := 1; attempt <= busDeliveryRetries; attempt++ {
		if err = handler(ctx, item.event); err == nil {
			return
		}
		b.logger.Warn("consumer handler failed, redelivering",
			"event", "bus_redeliver",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"message_type", item.messageType,
			"consumer_group", group,
			"message_id", item.event.Meta().MessageID,
			"attempt", attempt,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(busRedeliveryDelay):
		}
	}
	b.logger.Error("delivery abandoned after repeated redelivery",
		"event", "bus_delivery_abandoned",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"message_type", item.messageType,
		"consumer_group", group,
		"message_id", item.event.Meta().MessageID,
		"error", err.Error(),
	)
}

func (b *Bus) removeSubscriber(messageType string, target chan delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[messageType]
	if len(items) == 0 {
		return
	}
	filtered := make([]subscription, 0, len(items))
	for _, item := range items {
		if item.ch != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[messageType] = filtered
}
