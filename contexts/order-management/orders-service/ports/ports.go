package ports

import (
	"context"
	"time"

	"checkout/contexts/order-management/orders-service/domain/entities"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
)

// OrderRepository is the store surface owned by the orders service.
type OrderRepository interface {
	// CreateOrderWithOutbox persists the order row and the staged outbox
	// message in one atomic transaction; either both commit or neither.
	CreateOrderWithOutbox(ctx context.Context, order entities.Order, msg outbox.Message) error

	GetOrder(ctx context.Context, userID, orderID string) (entities.Order, error)
	ListOrders(ctx context.Context, userID string) ([]entities.Order, error)

	// ApplyPaymentResult moves a still-new order to the given terminal
	// status. It returns applied=false without error when the order is
	// already terminal, and ErrOrderNotFound when the order is unknown.
	ApplyPaymentResult(ctx context.Context, orderID string, status entities.OrderStatus, updatedAt time.Time) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventSubscriber delivers transport events at-least-once; handler errors
// trigger redelivery.
type EventSubscriber interface {
	Subscribe(ctx context.Context, messageType string, consumerGroup string, handler func(context.Context, events.Event) error) error
}
