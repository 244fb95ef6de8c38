package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout/contexts/order-management/orders-service/adapters/memory"
	"checkout/contexts/order-management/orders-service/domain/entities"
	domainerrors "checkout/contexts/order-management/orders-service/domain/errors"
	"checkout/internal/shared/events"
)

type testClock struct {
	now time.Time
}

func (c testClock) Now() time.Time { return c.now }

func newService(store *memory.Store) Service {
	return Service{
		Orders: store,
		Clock:  testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		IDGen:  store,
	}
}

func TestCreateOrderRequiresUser(t *testing.T) {
	service := newService(memory.NewStore(nil))
	_, err := service.CreateOrder(context.Background(), CreateOrderCommand{AmountMinor: 100})
	if !errors.Is(err, domainerrors.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	service := newService(memory.NewStore(nil))
	for _, amount := range []int64{0, -1} {
		_, err := service.CreateOrder(context.Background(), CreateOrderCommand{UserID: "user-1", AmountMinor: amount})
		if !errors.Is(err, domainerrors.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreateOrderRejectsOversizedAmount(t *testing.T) {
	service := newService(memory.NewStore(nil))
	_, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:      "user-1",
		AmountMinor: maxOrderAmountMinor + 1,
	})
	if !errors.Is(err, domainerrors.ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestCreateOrderStagesOutboxEventAtomically(t *testing.T) {
	store := memory.NewStore(nil)
	service := newService(store)

	order, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:        "user-1",
		AmountMinor:   1500,
		Description:   "sub box",
		CorrelationID: "corr-7",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Status != entities.OrderStatusNew {
		t.Fatalf("status = %s, want new", order.Status)
	}

	messages := store.Outbox().Messages()
	if len(messages) != 1 {
		t.Fatalf("outbox rows = %d, want 1", len(messages))
	}
	msg := messages[0]
	if msg.MessageType != events.TypeOrderCreated {
		t.Fatalf("message type = %s", msg.MessageType)
	}
	if msg.SentAt != nil {
		t.Fatal("staged message must not be pre-sent")
	}

	var event events.OrderCreated
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if event.OrderID != order.OrderID || event.UserID != "user-1" || event.AmountMinor != 1500 {
		t.Fatalf("payload mismatch: %+v", event)
	}
	if event.MessageID != msg.MessageID {
		t.Fatal("outbox row and payload must agree on message id")
	}
	if event.CorrelationID != "corr-7" {
		t.Fatalf("correlation id = %s", event.CorrelationID)
	}
	if event.Source != events.SourceOrders || event.SchemaVersion != events.SchemaVersion {
		t.Fatalf("envelope mismatch: %+v", event.Metadata)
	}
}

func TestGetOrderScopedToOwner(t *testing.T) {
	store := memory.NewStore(nil)
	service := newService(store)

	order, err := service.CreateOrder(context.Background(), CreateOrderCommand{UserID: "user-1", AmountMinor: 900})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if _, err := service.GetOrder(context.Background(), "user-1", order.OrderID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := service.GetOrder(context.Background(), "user-2", order.OrderID); !errors.Is(err, domainerrors.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign user, got %v", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := memory.NewStore(nil)
	clock := testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := Service{Orders: store, Clock: clock, IDGen: store}

	first, err := service.CreateOrder(context.Background(), CreateOrderCommand{UserID: "user-1", AmountMinor: 100})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	service.Clock = testClock{now: clock.now.Add(time.Minute)}
	second, err := service.CreateOrder(context.Background(), CreateOrderCommand{UserID: "user-1", AmountMinor: 200})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := service.ListOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	if orders[0].OrderID != second.OrderID || orders[1].OrderID != first.OrderID {
		t.Fatal("orders must list newest first")
	}
}
