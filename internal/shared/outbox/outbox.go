package outbox

import (
	"errors"
	"time"
)

// ErrDuplicateReceipt reports that an inbox receipt for the same
// (message_id, consumer) pair already exists. Consumers treat it as a
// replay, never as a failure.
var ErrDuplicateReceipt = errors.New("inbox receipt already recorded")

// Message is one outbox row: a serialized event waiting for publication,
// written in the same store transaction as the domain change that caused it.
type Message struct {
	OutboxID    string
	MessageID   string
	MessageType string
	Payload     []byte
	OccurredAt  time.Time

	SentAt *time.Time

	// Lease fields let several dispatcher instances share the table
	// without an application-level mutex.
	LockedBy    string
	LockedUntil *time.Time

	AttemptCount  int
	NextAttemptAt *time.Time
	LastError     string

	// ParkedAt marks a poisoned row that exhausted its attempt ceiling.
	// Parked rows are never selected again; last_error keeps the evidence.
	ParkedAt *time.Time
}

// Eligible reports whether the row may be reserved for dispatch at now.
func (m Message) Eligible(now time.Time) bool {
	if m.SentAt != nil || m.ParkedAt != nil {
		return false
	}
	if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
		return false
	}
	if m.LockedUntil != nil && !m.LockedUntil.Before(now) {
		return false
	}
	return true
}

// Receipt is one inbox row: proof that a consumer already processed a
// message. The (MessageID, Consumer) pair is unique in the store, which is
// the actual deduplication mechanism for concurrent duplicate deliveries.
type Receipt struct {
	InboxID     string
	MessageID   string
	Consumer    string
	ProcessedAt time.Time
}

// Backoff returns the delay before the next publish attempt:
// min(60s, 2^min(attempt, 6) seconds). Attempt counts start at 1.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		attempt = 6
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}
