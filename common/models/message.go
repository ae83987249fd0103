package models

import (
	"encoding/json"
	"fmt"
)

// Queue message kinds understood by the worker.
const (
	MessageEvent = "event"
	MessageAlert = "alert"
	MessageAudit = "audit"
)

// QueueMessage is the envelope placed on the durable queue. Data is opaque to
// everything but the worker.
type QueueMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AuditPayload is the data of an audit queue message.
type AuditPayload struct {
	Message string `json:"message"`
}

// NewQueueMessage wraps v in an envelope of the given kind.
func NewQueueMessage(kind string, v any) (QueueMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return QueueMessage{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return QueueMessage{Type: kind, Data: data}, nil
}

// NewAuditMessage builds an audit envelope carrying msg.
func NewAuditMessage(msg string) QueueMessage {
	m, _ := NewQueueMessage(MessageAudit, AuditPayload{Message: msg})
	return m
}
