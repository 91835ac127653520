package domain

import (
	"context"
	"time"
)

// Record event types.
const (
	EventRecordCreated = "record.created"
	EventRecordDeleted = "record.deleted"
)

// RecordEvent announces a confirmed change to a dashboard collection.
type RecordEvent struct {
	Type       string        `json:"type"`
	Identity   string        `json:"identity"`
	RecordID   string        `json:"record_id"`
	Fields     *RecordFields `json:"fields,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// EventPublisher fans record events out to downstream consumers.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, ev RecordEvent) error
}
