package lobbyproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMissingType = errors.New("event type is required")

// Envelope is one logical event on the wire in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New wraps payload under the given event type. A nil payload produces an envelope
// without a payload field.
func New(eventType string, payload any) (Envelope, error) {
	if strings.TrimSpace(eventType) == "" {
		return Envelope{}, ErrMissingType
	}
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env.Payload = raw
	return env, nil
}

// Must is New for payload types that always marshal.
func Must(eventType string, payload any) Envelope {
	env, err := New(eventType, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Parse reads one frame.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}
