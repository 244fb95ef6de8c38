package entities

import (
	"time"

	"checkout/internal/shared/events"
)

// TransactionStatus is the terminal outcome of a settlement attempt.
type TransactionStatus string

const (
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// PaymentTransaction records the settlement outcome for one order. At most
// one transaction exists per order; replays reuse the stored row instead of
// touching the balance again.
type PaymentTransaction struct {
	TransactionID string
	OrderID       string
	UserID        string
	AmountMinor   int64
	Status        TransactionStatus
	FailureReason events.FailureReason
	CreatedAt     time.Time
}

// Succeeded reports whether the settlement debited the account.
func (t PaymentTransaction) Succeeded() bool {
	return t.Status == TransactionSucceeded
}
