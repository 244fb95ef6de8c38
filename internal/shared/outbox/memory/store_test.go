package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout/internal/shared/outbox"
)

func TestAddReceiptEnforcesMessageConsumerUniqueness(t *testing.T) {
	store := NewStore()
	receipt := outbox.Receipt{
		InboxID:     "in-1",
		MessageID:   "msg-1",
		Consumer:    "payments-order-created-cg",
		ProcessedAt: time.Now().UTC(),
	}

	if err := store.AddReceipt(receipt); err != nil {
		t.Fatalf("first receipt failed: %v", err)
	}

	dup := receipt
	dup.InboxID = "in-2"
	if err := store.AddReceipt(dup); !errors.Is(err, outbox.ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}

	// Same message for a different consumer is a separate receipt.
	other := receipt
	other.InboxID = "in-3"
	other.Consumer = "another-cg"
	if err := store.AddReceipt(other); err != nil {
		t.Fatalf("different consumer receipt failed: %v", err)
	}
	if store.ReceiptCount() != 2 {
		t.Fatalf("receipt count = %d, want 2", store.ReceiptCount())
	}
}

func TestReserveHonorsBatchSizeOldestFirst(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		store.Append(outbox.Message{
			OutboxID:    id,
			MessageID:   "msg-" + id,
			MessageType: "orders.order_created",
			OccurredAt:  now.Add(-time.Duration(len(id)*i+1) * time.Minute),
		})
	}

	reserved, err := store.Reserve(context.Background(), "inst", 2, now.Add(30*time.Second), now)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if len(reserved) != 2 {
		t.Fatalf("reserved = %d, want 2", len(reserved))
	}
	if !reserved[0].OccurredAt.Before(reserved[1].OccurredAt) {
		t.Fatal("reserve must return oldest rows first")
	}
	for _, msg := range reserved {
		if msg.LockedBy != "inst" || msg.LockedUntil == nil || msg.AttemptCount != 1 {
			t.Fatalf("lease not stamped: %+v", msg)
		}
	}
}

func TestMarkSentClearsRetryState(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(time.Minute)
	store.Append(outbox.Message{
		OutboxID:      "ob-1",
		MessageID:     "msg-1",
		MessageType:   "orders.order_created",
		OccurredAt:    now.Add(-time.Minute),
		AttemptCount:  3,
		NextAttemptAt: &next,
		LastError:     "previous failure",
	})

	if err := store.MarkSent(context.Background(), "ob-1", now); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	msg, _ := store.Message("ob-1")
	if msg.SentAt == nil || !msg.SentAt.Equal(now) {
		t.Fatalf("sent_at = %v, want %s", msg.SentAt, now)
	}
	if msg.NextAttemptAt != nil || msg.LastError != "" {
		t.Fatal("mark sent must clear retry state")
	}
	if msg.AttemptCount != 3 {
		t.Fatal("attempt history must survive mark sent")
	}
}

func TestParkRemovesRowFromRotation(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Append(outbox.Message{
		OutboxID:    "ob-1",
		MessageID:   "msg-1",
		MessageType: "orders.order_created",
		OccurredAt:  now.Add(-time.Minute),
	})

	if err := store.Park(context.Background(), "ob-1", "poison payload", now); err != nil {
		t.Fatalf("park failed: %v", err)
	}
	reserved, err := store.Reserve(context.Background(), "inst", 10, now.Add(30*time.Second), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if len(reserved) != 0 {
		t.Fatal("parked row must never be reserved")
	}
	msg, _ := store.Message("ob-1")
	if msg.LastError != "poison payload" {
		t.Fatalf("parked row must keep last error, got %q", msg.LastError)
	}
}
