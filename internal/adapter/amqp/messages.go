package amqp

import (
	"encoding/json"
	"fmt"

	"salesboard/internal/domain"
)

// RecordEventMessage is the wire form of a domain.RecordEvent.
type RecordEventMessage struct {
	domain.RecordEvent
	Version int `json:"version"`
}

const messageVersion = 1

// NewRecordEventMessage wraps ev for publishing.
func NewRecordEventMessage(ev domain.RecordEvent) *RecordEventMessage {
	return &RecordEventMessage{RecordEvent: ev, Version: messageVersion}
}

// ToJSON encodes the message.
func (m *RecordEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordEventMessageFromJSON decodes a message body.
func RecordEventMessageFromJSON(body []byte) (*RecordEventMessage, error) {
	var m RecordEventMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode record event: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("decode record event: missing type")
	}
	return &m, nil
}
