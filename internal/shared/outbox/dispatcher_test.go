package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
	"checkout/internal/shared/outbox/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturePublisher struct {
	mu        sync.Mutex
	published []events.Event
	failWith  error
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, event)
	return nil
}

func (p *capturePublisher) Published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.published...)
}

func stageOrderCreated(t *testing.T, store *memory.Store, outboxID, messageID string, occurredAt time.Time) {
	t.Helper()
	event := events.OrderCreated{
		Metadata: events.Metadata{
			MessageID:     messageID,
			OccurredAt:    occurredAt,
			Source:        events.SourceOrders,
			SchemaVersion: events.SchemaVersion,
		},
		OrderID:     "order-" + outboxID,
		UserID:      "user-1",
		AmountMinor: 1500,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	store.Append(outbox.Message{
		OutboxID:    outboxID,
		MessageID:   messageID,
		MessageType: events.TypeOrderCreated,
		Payload:     payload,
		OccurredAt:  occurredAt,
	})
}

func TestDispatchOncePublishesAndMarksSent(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{}

	stageOrderCreated(t, store, "ob-1", "msg-1", clock.Now().Add(-2*time.Second))
	stageOrderCreated(t, store, "ob-2", "msg-2", clock.Now().Add(-time.Second))

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
	}

	reserved, err := dispatcher.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("dispatch once failed: %v", err)
	}
	if reserved != 2 {
		t.Fatalf("reserved = %d, want 2", reserved)
	}
	if got := publisher.Published(); len(got) != 2 {
		t.Fatalf("published = %d, want 2", len(got))
	}
	if store.UnsentCount() != 0 {
		t.Fatalf("unsent = %d, want 0", store.UnsentCount())
	}

	msg, ok := store.Message("ob-1")
	if !ok || msg.SentAt == nil {
		t.Fatal("ob-1 should be marked sent")
	}
	if msg.LockedBy != "" || msg.LockedUntil != nil {
		t.Fatal("lease fields should be cleared after send")
	}
}

func TestDispatchOncePublishesOldestFirst(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{}

	stageOrderCreated(t, store, "ob-new", "msg-new", clock.Now().Add(-time.Second))
	stageOrderCreated(t, store, "ob-old", "msg-old", clock.Now().Add(-time.Hour))

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
	}
	if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("dispatch once failed: %v", err)
	}

	published := publisher.Published()
	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	if published[0].Meta().MessageID != "msg-old" {
		t.Fatalf("first published = %s, want msg-old", published[0].Meta().MessageID)
	}
}

func TestDispatchFailureSchedulesRetryWithBackoff(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{failWith: errors.New("broker unavailable")}

	stageOrderCreated(t, store, "ob-1", "msg-1", clock.Now().Add(-time.Second))

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
	}
	if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("dispatch once failed: %v", err)
	}

	msg, _ := store.Message("ob-1")
	if msg.SentAt != nil {
		t.Fatal("failed publish must not mark sent")
	}
	if msg.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", msg.AttemptCount)
	}
	if msg.LastError != "broker unavailable" {
		t.Fatalf("last error = %q", msg.LastError)
	}
	if msg.NextAttemptAt == nil {
		t.Fatal("next attempt must be scheduled")
	}
	want := clock.Now().Add(outbox.Backoff(1))
	if !msg.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %s, want %s", msg.NextAttemptAt, want)
	}
	if msg.LockedBy != "" {
		t.Fatal("lease must be released on failure")
	}

	// The row stays invisible until the backoff elapses, then publishes.
	publisher.mu.Lock()
	publisher.failWith = nil
	publisher.mu.Unlock()

	reserved, err := dispatcher.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("dispatch during backoff failed: %v", err)
	}
	if reserved != 0 {
		t.Fatalf("reserved during backoff = %d, want 0", reserved)
	}

	clock.Advance(outbox.Backoff(1) + time.Millisecond)
	if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("dispatch after backoff failed: %v", err)
	}
	if store.UnsentCount() != 0 {
		t.Fatal("message should be sent after backoff elapsed")
	}
	msg, _ = store.Message("ob-1")
	if msg.LastError != "" || msg.NextAttemptAt != nil {
		t.Fatal("retry bookkeeping must be cleared on success")
	}
}

func TestDispatchTruncatesLongErrors(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{failWith: errors.New(strings.Repeat("x", 5000))}

	stageOrderCreated(t, store, "ob-1", "msg-1", clock.Now().Add(-time.Second))

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
		Config:     outbox.Config{MaxErrorLength: 300},
	}
	if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("dispatch once failed: %v", err)
	}

	msg, _ := store.Message("ob-1")
	if len(msg.LastError) != 300 {
		t.Fatalf("last error length = %d, want 300", len(msg.LastError))
	}
}

func TestDispatchParksAfterAttemptCeiling(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{failWith: errors.New("poison")}

	stageOrderCreated(t, store, "ob-1", "msg-1", clock.Now().Add(-time.Second))

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
		Config:     outbox.Config{MaxAttempts: 3},
	}

	for i := 0; i < 3; i++ {
		if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
		clock.Advance(2 * time.Minute)
	}

	msg, _ := store.Message("ob-1")
	if msg.ParkedAt == nil {
		t.Fatalf("message should be parked after %d attempts, got attempt_count=%d", 3, msg.AttemptCount)
	}
	if msg.LastError != "poison" {
		t.Fatalf("parked row must keep last error, got %q", msg.LastError)
	}

	// Parked rows never come back.
	reserved, err := dispatcher.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("dispatch after park failed: %v", err)
	}
	if reserved != 0 {
		t.Fatalf("reserved after park = %d, want 0", reserved)
	}
}

func TestDispatchUnknownTypeStaysObservable(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturePublisher{}

	store.Append(outbox.Message{
		OutboxID:    "ob-1",
		MessageID:   "msg-1",
		MessageType: "orders.format_v99",
		Payload:     []byte(`{}`),
		OccurredAt:  clock.Now().Add(-time.Second),
	})

	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  publisher,
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		InstanceID: "test-instance",
	}
	if _, err := dispatcher.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("dispatch once failed: %v", err)
	}

	if len(publisher.Published()) != 0 {
		t.Fatal("undecodable message must not publish")
	}
	msg, _ := store.Message("ob-1")
	if msg.SentAt != nil {
		t.Fatal("undecodable message must not be marked sent")
	}
	if !strings.Contains(msg.LastError, "unknown message type") {
		t.Fatalf("last error should name the registry miss, got %q", msg.LastError)
	}
}

func TestReserveSkipsRowsLeasedByOtherInstance(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	stageOrderCreated(t, store, "ob-1", "msg-1", clock.Now().Add(-time.Second))

	leaseUntil := clock.Now().Add(30 * time.Second)
	first, err := store.Reserve(context.Background(), "instance-a", 10, leaseUntil, clock.Now())
	if err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first reserve = %d rows, want 1", len(first))
	}

	second, err := store.Reserve(context.Background(), "instance-b", 10, leaseUntil, clock.Now())
	if err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatal("live lease must hide the row from other instances")
	}

	// After the lease expires the other instance may take over.
	clock.Advance(31 * time.Second)
	third, err := store.Reserve(context.Background(), "instance-b", 10, clock.Now().Add(30*time.Second), clock.Now())
	if err != nil {
		t.Fatalf("third reserve failed: %v", err)
	}
	if len(third) != 1 {
		t.Fatal("expired lease must release the row")
	}
	if third[0].AttemptCount != 2 {
		t.Fatalf("attempt count after takeover = %d, want 2", third[0].AttemptCount)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	dispatcher := outbox.Dispatcher{
		Store:      store,
		Publisher:  &capturePublisher{},
		Registry:   events.DefaultRegistry(),
		Clock:      clock,
		Config:     outbox.Config{PollInterval: 50 * time.Millisecond},
		InstanceID: "test-instance",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
