package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"checkout/contexts/order-management/orders-service/domain/entities"
	domainerrors "checkout/contexts/order-management/orders-service/domain/errors"
	"checkout/contexts/order-management/orders-service/ports"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
)

// maxOrderAmountMinor caps a single order at 10,000,000.00 in minor units.
const maxOrderAmountMinor = 10_000_000_00

// CreateOrderCommand is the write-model input for order creation.
type CreateOrderCommand struct {
	UserID        string
	AmountMinor   int64
	Description   string
	CorrelationID string
}

// Service orchestrates order commands and queries. Order creation is the
// transactional-writer hop: the order row and its OrderCreated outbox row
// commit together or not at all.
type Service struct {
	Orders ports.OrderRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (s Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (entities.Order, error) {
	logger := ResolveLogger(s.Logger)
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return entities.Order{}, domainerrors.ErrUserRequired
	}
	if cmd.AmountMinor <= 0 {
		return entities.Order{}, domainerrors.ErrInvalidAmount
	}
	if cmd.AmountMinor > maxOrderAmountMinor {
		return entities.Order{}, domainerrors.ErrAmountTooLarge
	}

	now := s.Clock.Now().UTC()

	orderID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Order{}, err
	}
	messageID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Order{}, err
	}
	outboxID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Order{}, err
	}

	order := entities.Order{
		OrderID:     orderID,
		UserID:      userID,
		AmountMinor: cmd.AmountMinor,
		Description: strings.TrimSpace(cmd.Description),
		Status:      entities.OrderStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	event := events.OrderCreated{
		Metadata: events.Metadata{
			MessageID:     messageID,
			CorrelationID: strings.TrimSpace(cmd.CorrelationID),
			OccurredAt:    now,
			Source:        events.SourceOrders,
			SchemaVersion: events.SchemaVersion,
		},
		OrderID:     orderID,
		UserID:      userID,
		AmountMinor: cmd.AmountMinor,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return entities.Order{}, err
	}

	msg := outbox.Message{
		OutboxID:    outboxID,
		MessageID:   messageID,
		MessageType: events.TypeOrderCreated,
		Payload:     payload,
		OccurredAt:  now,
	}

	if err := s.Orders.CreateOrderWithOutbox(ctx, order, msg); err != nil {
		logger.Error("order create persistence failed",
			"event", "orders_create_failed",
			"module", "order-management/orders-service",
			"layer", "application",
			"user_id", userID,
			"order_id", orderID,
			"error", err.Error(),
		)
		return entities.Order{}, err
	}

	logger.Info("order created",
		"event", "orders_created",
		"module", "order-management/orders-service",
		"layer", "application",
		"user_id", userID,
		"order_id", orderID,
		"amount_minor", cmd.AmountMinor,
		"message_id", messageID,
	)
	return order, nil
}

func (s Service) GetOrder(ctx context.Context, userID, orderID string) (entities.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entities.Order{}, domainerrors.ErrUserRequired
	}
	return s.Orders.GetOrder(ctx, userID, strings.TrimSpace(orderID))
}

func (s Service) ListOrders(ctx context.Context, userID string) ([]entities.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainerrors.ErrUserRequired
	}
	return s.Orders.ListOrders(ctx, userID)
}
