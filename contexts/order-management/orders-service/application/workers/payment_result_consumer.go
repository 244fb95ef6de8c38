package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "checkout/contexts/order-management/orders-service/application"
	"checkout/contexts/order-management/orders-service/domain/entities"
	domainerrors "checkout/contexts/order-management/orders-service/domain/errors"
	"checkout/contexts/order-management/orders-service/ports"
	"checkout/internal/shared/events"
)

const defaultPaymentResultCG = "orders-payment-result-cg"

// PaymentResultConsumer applies settlement outcomes to the order state
// machine: new -> finished on success, new -> cancelled on failure. Both
// terminal states are absorbing, which is what makes redelivery harmless.
type PaymentResultConsumer struct {
	Subscriber    ports.EventSubscriber
	Orders        ports.OrderRepository
	Clock         ports.Clock
	ConsumerGroup string
	Disabled      bool
	Logger        *slog.Logger
}

func (c PaymentResultConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("payment result consumer disabled by feature flag",
			"event", "orders_payment_result_consumer_disabled",
			"module", "order-management/orders-service",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultPaymentResultCG
	}
	if err := c.Subscriber.Subscribe(ctx, events.TypePaymentSucceeded, group, c.handle); err != nil {
		return err
	}
	if err := c.Subscriber.Subscribe(ctx, events.TypePaymentFailed, group, c.handle); err != nil {
		return err
	}
	logger.Info("payment result consumer subscriptions active",
		"event", "orders_payment_result_consumer_started",
		"module", "order-management/orders-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c PaymentResultConsumer) handle(ctx context.Context, event events.Event) error {
	logger := application.ResolveLogger(c.Logger)

	var (
		orderID string
		status  entities.OrderStatus
	)
	switch payload := event.(type) {
	case events.PaymentSucceeded:
		orderID = payload.OrderID
		status = entities.OrderStatusFinished
	case events.PaymentFailed:
		orderID = payload.OrderID
		status = entities.OrderStatusCancelled
	default:
		logger.Warn("payment result consumer received unexpected event",
			"event", "orders_payment_result_unexpected_type",
			"module", "order-management/orders-service",
			"layer", "worker",
			"message_type", event.Type(),
		)
		return nil
	}

	applied, err := c.Orders.ApplyPaymentResult(ctx, orderID, status, c.now())
	if err != nil {
		if errors.Is(err, domainerrors.ErrOrderNotFound) {
			// Data-quality signal, not a processing failure: a result
			// for an order this service never wrote. Log and drop so the
			// transport does not redeliver forever.
			logger.Warn("payment result for unknown order dropped",
				"event", "orders_payment_result_unknown_order",
				"module", "order-management/orders-service",
				"layer", "worker",
				"order_id", orderID,
				"message_id", event.Meta().MessageID,
			)
			return nil
		}
		logger.Error("payment result apply failed",
			"event", "orders_payment_result_apply_failed",
			"module", "order-management/orders-service",
			"layer", "worker",
			"order_id", orderID,
			"message_id", event.Meta().MessageID,
			"error", err.Error(),
		)
		return err
	}

	if !applied {
		logger.Debug("payment result replay on terminal order skipped",
			"event", "orders_payment_result_replayed",
			"module", "order-management/orders-service",
			"layer", "worker",
			"order_id", orderID,
			"message_id", event.Meta().MessageID,
		)
		return nil
	}

	logger.Info("payment result applied",
		"event", "orders_payment_result_applied",
		"module", "order-management/orders-service",
		"layer", "worker",
		"order_id", orderID,
		"status", string(status),
		"message_id", event.Meta().MessageID,
	)
	return nil
}

func (c PaymentResultConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
