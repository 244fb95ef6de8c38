package workers

import (
	"context"
	"testing"
	"time"

	"checkout/contexts/order-management/orders-service/adapters/memory"
	"checkout/contexts/order-management/orders-service/domain/entities"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
)

type stubSubscriber struct {
	handlers map[string]func(context.Context, events.Event) error
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{handlers: make(map[string]func(context.Context, events.Event) error)}
}

func (s *stubSubscriber) Subscribe(_ context.Context, messageType, _ string, handler func(context.Context, events.Event) error) error {
	s.handlers[messageType] = handler
	return nil
}

func (s *stubSubscriber) deliver(t *testing.T, event events.Event) error {
	t.Helper()
	handler, ok := s.handlers[event.Type()]
	if !ok {
		t.Fatalf("no subscription for %s", event.Type())
	}
	return handler(context.Background(), event)
}

func seedOrder(t *testing.T, store *memory.Store, orderID string) {
	t.Helper()
	err := store.CreateOrderWithOutbox(context.Background(), entities.Order{
		OrderID:     orderID,
		UserID:      "user-1",
		AmountMinor: 1500,
		Status:      entities.OrderStatusNew,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}, outbox.Message{OutboxID: "ob-" + orderID, MessageID: "msg-" + orderID, MessageType: events.TypeOrderCreated, OccurredAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
}

func paymentSucceeded(orderID, messageID string) events.PaymentSucceeded {
	return events.PaymentSucceeded{
		Metadata: events.Metadata{
			MessageID:     messageID,
			OccurredAt:    time.Now().UTC(),
			Source:        events.SourcePayments,
			SchemaVersion: events.SchemaVersion,
		},
		OrderID:     orderID,
		UserID:      "user-1",
		AmountMinor: 1500,
	}
}

func TestPaymentSucceededFinishesOrder(t *testing.T) {
	store := memory.NewStore(nil)
	seedOrder(t, store, "order-1")

	subscriber := newStubSubscriber()
	consumer := PaymentResultConsumer{Subscriber: subscriber, Orders: store}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := subscriber.deliver(t, paymentSucceeded("order-1", "result-1")); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	order, err := store.GetOrder(context.Background(), "user-1", "order-1")
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if order.Status != entities.OrderStatusFinished {
		t.Fatalf("status = %s, want finished", order.Status)
	}
}

func TestPaymentFailedCancelsOrder(t *testing.T) {
	store := memory.NewStore(nil)
	seedOrder(t, store, "order-1")

	subscriber := newStubSubscriber()
	consumer := PaymentResultConsumer{Subscriber: subscriber, Orders: store}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	failed := events.PaymentFailed{
		Metadata: events.Metadata{
			MessageID:     "result-1",
			OccurredAt:    time.Now().UTC(),
			Source:        events.SourcePayments,
			SchemaVersion: events.SchemaVersion,
		},
		OrderID:     "order-1",
		UserID:      "user-1",
		AmountMinor: 1500,
		Reason:      events.ReasonInsufficientFunds,
	}
	if err := subscriber.deliver(t, failed); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	order, _ := store.GetOrder(context.Background(), "user-1", "order-1")
	if order.Status != entities.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", order.Status)
	}
}

func TestRedeliveredResultNeverOverwritesTerminalStatus(t *testing.T) {
	store := memory.NewStore(nil)
	seedOrder(t, store, "order-1")

	subscriber := newStubSubscriber()
	consumer := PaymentResultConsumer{Subscriber: subscriber, Orders: store}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := subscriber.deliver(t, paymentSucceeded("order-1", "result-1")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// A late contradictory failure must be absorbed, not applied.
	late := events.PaymentFailed{
		Metadata:    events.Metadata{MessageID: "result-2", OccurredAt: time.Now().UTC(), Source: events.SourcePayments, SchemaVersion: events.SchemaVersion},
		OrderID:     "order-1",
		UserID:      "user-1",
		AmountMinor: 1500,
		Reason:      events.ReasonInsufficientFunds,
	}
	if err := subscriber.deliver(t, late); err != nil {
		t.Fatalf("late delivery errored: %v", err)
	}

	order, _ := store.GetOrder(context.Background(), "user-1", "order-1")
	if order.Status != entities.OrderStatusFinished {
		t.Fatalf("terminal status overwritten: %s", order.Status)
	}
}

func TestResultForUnknownOrderIsDropped(t *testing.T) {
	store := memory.NewStore(nil)

	subscriber := newStubSubscriber()
	consumer := PaymentResultConsumer{Subscriber: subscriber, Orders: store}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Returning nil keeps the transport from redelivering a result this
	// service can never apply.
	if err := subscriber.deliver(t, paymentSucceeded("order-ghost", "result-1")); err != nil {
		t.Fatalf("unknown order must be dropped without error, got %v", err)
	}
}

func TestDisabledConsumerSubscribesNothing(t *testing.T) {
	subscriber := newStubSubscriber()
	consumer := PaymentResultConsumer{Subscriber: subscriber, Orders: memory.NewStore(nil), Disabled: true}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(subscriber.handlers) != 0 {
		t.Fatalf("disabled consumer registered %d handlers", len(subscriber.handlers))
	}
}
