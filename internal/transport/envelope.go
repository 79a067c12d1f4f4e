// Package transport moves decrypted envelopes between the daemon and
// the local relay collaborator that owns session crypto. The daemon's
// boundary input is already-plaintext payload plus metadata; nothing in
// here touches key material.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Envelope is one inbound delivery. Seq is the relay's resume cursor;
// acking a seq tells the relay it may drop everything up to it.
type Envelope struct {
	ChatID      string          `json:"chatId"`
	SenderID    string          `json:"senderId,omitempty"`
	MessageID   string          `json:"messageId"`
	ContentType string          `json:"contentType"`
	Data        json.RawMessage `json:"data"`
	Timestamp   int64           `json:"timestamp"`
	Seq         uint64          `json:"seq,omitempty"`
}

// ParseEnvelope decodes and validates a raw relay frame.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.ChatID == "" {
		return nil, fmt.Errorf("parse envelope: missing chatId")
	}
	if env.MessageID == "" {
		return nil, fmt.Errorf("parse envelope: missing messageId")
	}
	if env.ContentType == "" {
		return nil, fmt.Errorf("parse envelope: missing contentType")
	}
	if env.Timestamp <= 0 {
		return nil, fmt.Errorf("parse envelope: missing timestamp")
	}
	return &env, nil
}

// Handler consumes one inbound envelope. A nil return acknowledges the
// envelope to the relay; an error leaves it unacked for redelivery.
type Handler func(ctx context.Context, env *Envelope) error

// Sender hands an outbound payload to the relay for encryption and
// delivery.
type Sender interface {
	Send(ctx context.Context, chatID, contentType string, data json.RawMessage) error
}
