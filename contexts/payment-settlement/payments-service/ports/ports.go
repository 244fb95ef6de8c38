package ports

import (
	"context"
	"time"

	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
)

// AccountRepository persists account balances.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account entities.Account) error
	GetAccount(ctx context.Context, userID string) (entities.Account, error)
	// TopUp adds amount to the account balance and returns the new balance.
	TopUp(ctx context.Context, userID string, amountMinor int64, updatedAt time.Time) (int64, error)
}

// SettlementCommand carries everything RecordSettlement needs to admit one
// inbound OrderCreated message and settle its order.
type SettlementCommand struct {
	MessageID string
	ReceiptID string
	Consumer  string

	OrderID     string
	UserID      string
	AmountMinor int64

	// TransactionID is used only when a new transaction row is created.
	TransactionID string
	Now           time.Time
}

// SettlementResult reports how the command was resolved.
type SettlementResult struct {
	// Replayed is true when the inbox already held a receipt for the
	// message; nothing was written and Transaction is zero.
	Replayed bool
	// Reused is true when the order already had a settlement transaction
	// from an earlier delivery; the stored outcome was re-published.
	Reused      bool
	Transaction entities.PaymentTransaction
}

// EnqueueFunc builds the outbox message for a settlement outcome. It runs
// inside the settlement transaction, after the outcome is known.
type EnqueueFunc func(tx entities.PaymentTransaction) (outbox.Message, error)

// SettlementStore executes the settlement transaction: inbox receipt,
// conditional debit, transaction row, and outbox append commit atomically.
type SettlementStore interface {
	RecordSettlement(ctx context.Context, cmd SettlementCommand, enqueue EnqueueFunc) (SettlementResult, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for accounts-side writes.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventSubscriber attaches a consumer-group handler to a message type.
type EventSubscriber interface {
	Subscribe(ctx context.Context, messageType, consumerGroup string, handler func(context.Context, events.Event) error) error
}
