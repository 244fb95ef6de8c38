package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkout/internal/shared/outbox"
)

// Store is the in-memory outbox/inbox used by in-memory modules and tests.
// It mirrors the Postgres store's semantics, including lease skip and
// expiry, under a single mutex.
type Store struct {
	mu       sync.Mutex
	messages map[string]outbox.Message
	receipts map[string]outbox.Receipt
}

func NewStore() *Store {
	return &Store{
		messages: make(map[string]outbox.Message),
		receipts: make(map[string]outbox.Receipt),
	}
}

// Append stages a message; called by context memory stores inside their own
// locked sections to emulate the shared-transaction write.
func (s *Store) Append(msg outbox.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.OutboxID] = msg
}

// AddReceipt records an inbox receipt, enforcing (message_id, consumer)
// uniqueness the way the database constraint does.
func (s *Store) AddReceipt(receipt outbox.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addReceiptLocked(receipt)
}

func (s *Store) addReceiptLocked(receipt outbox.Receipt) error {
	key := receipt.MessageID + "|" + receipt.Consumer
	if _, exists := s.receipts[key]; exists {
		return outbox.ErrDuplicateReceipt
	}
	s.receipts[key] = receipt
	return nil
}

func (s *Store) Reserve(ctx context.Context, lockedBy string, batchSize int, leaseUntil, now time.Time) ([]outbox.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]outbox.Message, 0, batchSize)
	for _, msg := range s.messages {
		if msg.Eligible(now) {
			eligible = append(eligible, msg)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].OccurredAt.Before(eligible[j].OccurredAt)
	})
	if len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}

	reserved := make([]outbox.Message, 0, len(eligible))
	for _, msg := range eligible {
		lease := leaseUntil
		msg.LockedBy = lockedBy
		msg.LockedUntil = &lease
		msg.AttemptCount++
		s.messages[msg.OutboxID] = msg
		reserved = append(reserved, msg)
	}
	return reserved, nil
}

func (s *Store) MarkSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[outboxID]
	if !ok {
		return nil
	}
	msg.SentAt = &sentAt
	msg.LockedBy = ""
	msg.LockedUntil = nil
	msg.NextAttemptAt = nil
	msg.LastError = ""
	s.messages[outboxID] = msg
	return nil
}

func (s *Store) ScheduleRetry(ctx context.Context, outboxID string, lastError string, nextAttemptAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[outboxID]
	if !ok {
		return nil
	}
	msg.LockedBy = ""
	msg.LockedUntil = nil
	msg.NextAttemptAt = &nextAttemptAt
	msg.LastError = lastError
	s.messages[outboxID] = msg
	return nil
}

func (s *Store) Park(ctx context.Context, outboxID string, lastError string, parkedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[outboxID]
	if !ok {
		return nil
	}
	msg.LockedBy = ""
	msg.LockedUntil = nil
	msg.LastError = lastError
	msg.ParkedAt = &parkedAt
	s.messages[outboxID] = msg
	return nil
}

// Message returns a stored row by outbox id.
func (s *Store) Message(outboxID string) (outbox.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[outboxID]
	return msg, ok
}

// Messages returns a snapshot ordered by occurred_at.
func (s *Store) Messages() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]outbox.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		items = append(items, msg)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})
	return items
}

// UnsentCount reports rows that have not reached sent_at yet.
func (s *Store) UnsentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.SentAt == nil {
			count++
		}
	}
	return count
}

// ReceiptCount reports how many inbox receipts are recorded.
func (s *Store) ReceiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}
