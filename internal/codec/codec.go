// Package codec encodes and decodes application messages to and from wire
// frames. The channel pool treats message payloads as opaque; the codec is the
// only component that looks inside a frame.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode indicates a malformed inbound frame. Decode failures are logged
// and the frame dropped; they never affect channel state.
var ErrDecode = errors.New("malformed frame")

// Message is one application message carried over a pooled channel.
type Message struct {
	Category string          `json:"category"`
	TenantID string          `json:"tenant_id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   time.Time       `json:"sent_at,omitempty"`
}

// Codec converts between Messages and wire frames.
type Codec interface {
	// Encode serializes a message to wire bytes.
	Encode(msg Message) ([]byte, error)

	// Decode parses wire bytes into a message. Malformed input returns an
	// error wrapping ErrDecode.
	Decode(data []byte) (Message, error)
}

// JSON is the default codec: one JSON object per frame.
type JSON struct{}

// Encode implements Codec.
func (JSON) Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode implements Codec.
func (JSON) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return msg, nil
}
