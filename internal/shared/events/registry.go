package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessageType signals a registry miss for a stored discriminator.
// The outbox dispatcher treats it like any other publish failure so the row
// stays visible for operators instead of being dropped.
var ErrUnknownMessageType = errors.New("unknown message type")

// DecodeFunc reconstructs a typed event from its stored JSON payload.
type DecodeFunc func(payload []byte) (Event, error)

// Registry is the closed mapping from message type discriminators to decode
// functions. Adding a new event type means adding one Register call.
type Registry struct {
	decoders map[string]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

func (r *Registry) Register(messageType string, decode DecodeFunc) {
	r.decoders[messageType] = decode
}

// Decode resolves the discriminator and unmarshals the payload.
func (r *Registry) Decode(messageType string, payload []byte) (Event, error) {
	decode, ok := r.decoders[messageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, messageType)
	}
	event, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", messageType, err)
	}
	return event, nil
}

// DefaultRegistry knows every event exchanged between the two services.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeOrderCreated, func(payload []byte) (Event, error) {
		var event OrderCreated
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	r.Register(TypePaymentSucceeded, func(payload []byte) (Event, error) {
		var event PaymentSucceeded
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	r.Register(TypePaymentFailed, func(payload []byte) (Event, error) {
		var event PaymentFailed
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		event.Reason = NormalizeReason(string(event.Reason))
		return event, nil
	})
	return r
}
