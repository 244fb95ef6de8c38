package events

import "time"

// Producing service names carried in the Source field of every event.
const (
	SourceOrders   = "orders-service"
	SourcePayments = "payments-service"
)

// SchemaVersion is the current contract version stamped on outgoing events.
const SchemaVersion = 1

// Message type discriminators stored on outbox rows and used as routing keys.
const (
	TypeOrderCreated     = "orders.order_created"
	TypePaymentSucceeded = "payments.payment_succeeded"
	TypePaymentFailed    = "payments.payment_failed"
)

// Metadata is the envelope shared by every event exchanged between the
// orders and payments services. MessageID is the inbox deduplication key;
// CorrelationID links the whole chain (HTTP -> OrderCreated -> result) and
// CausationID names the message that produced this one.
type Metadata struct {
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Source        string    `json:"source"`
	SchemaVersion int       `json:"schema_version"`
}

// Event is implemented by every concrete event payload.
type Event interface {
	Meta() Metadata
	Type() string
}

// OrderCreated announces a new order that requires settlement.
type OrderCreated struct {
	Metadata
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
}

func (e OrderCreated) Meta() Metadata { return e.Metadata }
func (e OrderCreated) Type() string   { return TypeOrderCreated }

// PaymentSucceeded announces a completed debit for an order.
type PaymentSucceeded struct {
	Metadata
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
}

func (e PaymentSucceeded) Meta() Metadata { return e.Metadata }
func (e PaymentSucceeded) Type() string   { return TypePaymentSucceeded }

// FailureReason is the normalized business reason carried by PaymentFailed.
type FailureReason string

const (
	ReasonUnknown             FailureReason = "unknown"
	ReasonAccountNotFound     FailureReason = "account_not_found"
	ReasonInsufficientFunds   FailureReason = "insufficient_funds"
	ReasonConcurrencyConflict FailureReason = "concurrency_conflict"
)

// NormalizeReason maps a wire value onto the closed reason set. Unrecognized
// values fold into ReasonUnknown so newer producers stay decodable.
func NormalizeReason(raw string) FailureReason {
	switch FailureReason(raw) {
	case ReasonAccountNotFound, ReasonInsufficientFunds, ReasonConcurrencyConflict:
		return FailureReason(raw)
	default:
		return ReasonUnknown
	}
}

// PaymentFailed announces a settlement attempt that did not debit the
// account. Details is free-form diagnostics, never business input.
type PaymentFailed struct {
	Metadata
	OrderID     string        `json:"order_id"`
	UserID      string        `json:"user_id"`
	AmountMinor int64         `json:"amount_minor"`
	Reason      FailureReason `json:"reason"`
	Details     string        `json:"details,omitempty"`
}

func (e PaymentFailed) Meta() Metadata { return e.Metadata }
func (e PaymentFailed) Type() string   { return TypePaymentFailed }
