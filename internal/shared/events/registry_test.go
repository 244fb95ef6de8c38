package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDefaultRegistryDecodesOrderCreated(t *testing.T) {
	registry := DefaultRegistry()
	original := OrderCreated{
		Metadata: Metadata{
			MessageID:     "msg-1",
			CorrelationID: "corr-1",
			OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Source:        SourceOrders,
			SchemaVersion: SchemaVersion,
		},
		OrderID:     "order-1",
		UserID:      "user-1",
		AmountMinor: 2500,
	}
	payload, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	decoded, err := registry.Decode(TypeOrderCreated, payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	event, ok := decoded.(OrderCreated)
	if !ok {
		t.Fatalf("decoded type = %T, want OrderCreated", decoded)
	}
	if event != original {
		t.Fatalf("decoded = %+v, want %+v", event, original)
	}
	if event.Type() != TypeOrderCreated {
		t.Fatalf("type = %s", event.Type())
	}
}

func TestDecodeUnknownTypeFails(t *testing.T) {
	registry := DefaultRegistry()
	_, err := registry.Decode("orders.order_archived", []byte(`{}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeMalformedPayloadFails(t *testing.T) {
	registry := DefaultRegistry()
	if _, err := registry.Decode(TypeOrderCreated, []byte(`{"amount_minor": "not-a-number"`)); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestDecodePaymentFailedNormalizesReason(t *testing.T) {
	registry := DefaultRegistry()
	payload := []byte(`{"message_id":"msg-9","reason":"card_melted","order_id":"order-9"}`)

	decoded, err := registry.Decode(TypePaymentFailed, payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	event := decoded.(PaymentFailed)
	if event.Reason != ReasonUnknown {
		t.Fatalf("reason = %s, want %s", event.Reason, ReasonUnknown)
	}
}

func TestNormalizeReason(t *testing.T) {
	cases := map[string]FailureReason{
		"account_not_found":    ReasonAccountNotFound,
		"insufficient_funds":   ReasonInsufficientFunds,
		"concurrency_conflict": ReasonConcurrencyConflict,
		"":                     ReasonUnknown,
		"card_declined":        ReasonUnknown,
	}
	for raw, want := range cases {
		if got := NormalizeReason(raw); got != want {
			t.Fatalf("NormalizeReason(%q) = %s, want %s", raw, got, want)
		}
	}
}
