package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "checkout/contexts/payment-settlement/payments-service/application"
	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	"checkout/contexts/payment-settlement/payments-service/ports"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
)

const defaultOrderCreatedCG = "payments-order-created-cg"

// OrderCreatedConsumer settles incoming orders. Each delivery funnels into
// one SettlementStore transaction: inbox receipt, conditional debit,
// transaction row, and the result event's outbox row commit together.
// Redeliveries either stop at the receipt or reuse the stored transaction,
// so the balance is debited at most once per order.
type OrderCreatedConsumer struct {
	Subscriber    ports.EventSubscriber
	Store         ports.SettlementStore
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	ConsumerGroup string
	Disabled      bool
	Logger        *slog.Logger
}

func (c OrderCreatedConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("order created consumer disabled by feature flag",
			"event", "payments_order_created_consumer_disabled",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultOrderCreatedCG
	}
	if err := c.Subscriber.Subscribe(ctx, events.TypeOrderCreated, group, c.handle); err != nil {
		return err
	}
	logger.Info("order created consumer subscription active",
		"event", "payments_order_created_consumer_started",
		"module", "payment-settlement/payments-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c OrderCreatedConsumer) handle(ctx context.Context, event events.Event) error {
	logger := application.ResolveLogger(c.Logger)

	created, ok := event.(events.OrderCreated)
	if !ok {
		logger.Warn("order created consumer received unexpected event",
			"event", "payments_order_created_unexpected_type",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
			"message_type", event.Type(),
		)
		return nil
	}

	receiptID, err := c.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	transactionID, err := c.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	resultMessageID, err := c.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	resultOutboxID, err := c.IDGen.NewID(ctx)
	if err != nil {
		return err
	}

	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultOrderCreatedCG
	}
	now := c.now()

	cmd := ports.SettlementCommand{
		MessageID:     created.Meta().MessageID,
		ReceiptID:     receiptID,
		Consumer:      group,
		OrderID:       created.OrderID,
		UserID:        created.UserID,
		AmountMinor:   created.AmountMinor,
		TransactionID: transactionID,
		Now:           now,
	}

	enqueue := func(tx entities.PaymentTransaction) (outbox.Message, error) {
		meta := events.Metadata{
			MessageID:     resultMessageID,
			CorrelationID: created.Meta().CorrelationID,
			CausationID:   created.Meta().MessageID,
			OccurredAt:    now,
			Source:        events.SourcePayments,
			SchemaVersion: events.SchemaVersion,
		}

		var result events.Event
		if tx.Succeeded() {
			result = events.PaymentSucceeded{
				Metadata:    meta,
				OrderID:     tx.OrderID,
				UserID:      tx.UserID,
				AmountMinor: tx.AmountMinor,
			}
		} else {
			result = events.PaymentFailed{
				Metadata:    meta,
				OrderID:     tx.OrderID,
				UserID:      tx.UserID,
				AmountMinor: tx.AmountMinor,
				Reason:      events.NormalizeReason(string(tx.FailureReason)),
			}
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return outbox.Message{}, err
		}
		return outbox.Message{
			OutboxID:    resultOutboxID,
			MessageID:   resultMessageID,
			MessageType: result.Type(),
			Payload:     payload,
			OccurredAt:  now,
		}, nil
	}

	outcome, err := c.Store.RecordSettlement(ctx, cmd, enqueue)
	if err != nil {
		logger.Error("order settlement failed",
			"event", "payments_settlement_failed",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
			"order_id", created.OrderID,
			"message_id", created.Meta().MessageID,
			"error", err.Error(),
		)
		return err
	}

	switch {
	case outcome.Replayed:
		logger.Debug("order created replay dropped by inbox",
			"event", "payments_order_created_replayed",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
			"order_id", created.OrderID,
			"message_id", created.Meta().MessageID,
		)
	case outcome.Reused:
		logger.Info("stored settlement outcome re-published",
			"event", "payments_settlement_reused",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
			"order_id", created.OrderID,
			"transaction_id", outcome.Transaction.TransactionID,
			"status", string(outcome.Transaction.Status),
		)
	default:
		logger.Info("order settled",
			"event", "payments_settlement_recorded",
			"module", "payment-settlement/payments-service",
			"layer", "worker",
			"order_id", created.OrderID,
			"transaction_id", outcome.Transaction.TransactionID,
			"status", string(outcome.Transaction.Status),
			"reason", string(outcome.Transaction.FailureReason),
		)
	}
	return nil
}

func (c OrderCreatedConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
