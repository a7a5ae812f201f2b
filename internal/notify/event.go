package notify

import (
	"time"

	"github.com/roach88/schemata/internal/model"
)

// Topic names a lifecycle event.
type Topic string

const (
	TopicSchemaCreated   Topic = "schema-created"
	TopicSchemaUpdated   Topic = "schema-updated"
	TopicSchemaDeleted   Topic = "schema-deleted"
	TopicPropertyDeleted Topic = "property-deleted"
)

// Message is what a workflow publishes: a topic and its payload. The
// payload must be accepted by model.MarshalCanonical.
type Message struct {
	Topic   Topic
	Payload map[string]any
}

// SchemaCreated announces a committed aggregate.
func SchemaCreated(agg model.Aggregate) Message {
	return Message{
		Topic:   TopicSchemaCreated,
		Payload: map[string]any{"schema": agg.CanonicalMap()},
	}
}

// SchemaUpdated carries both the committed aggregate and the one it replaced.
func SchemaUpdated(next, prev model.Aggregate) Message {
	return Message{
		Topic: TopicSchemaUpdated,
		Payload: map[string]any{
			"schema":   next.CanonicalMap(),
			"previous": prev.CanonicalMap(),
		},
	}
}

// SchemaDeleted names a removed schema.
func SchemaDeleted(schemaID, schemaName string) Message {
	return Message{
		Topic: TopicSchemaDeleted,
		Payload: map[string]any{
			"id":         schemaID,
			"schemaName": schemaName,
		},
	}
}

// PropertyDeleted names a removed property and the schema it belonged to.
func PropertyDeleted(propertyID, propertyName, schemaName string) Message {
	return Message{
		Topic: TopicPropertyDeleted,
		Payload: map[string]any{
			"id":           propertyID,
			"propertyName": propertyName,
			"schemaName":   schemaName,
		},
	}
}

// Event is the delivered envelope.
type Event struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	Queue      string         `json:"queue"`
	Type       Topic          `json:"type"`
	Version    string         `json:"version"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload"`
}

// CanonicalMap converts the envelope into the form accepted by
// model.MarshalCanonical.
func (e Event) CanonicalMap() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"seq":        e.Seq,
		"queue":      e.Queue,
		"type":       string(e.Type),
		"version":    e.Version,
		"occurredAt": e.OccurredAt,
		"payload":    e.Payload,
	}
}

// Encode returns the canonical JSON bytes of the envelope.
func (e Event) Encode() ([]byte, error) {
	return model.MarshalCanonical(e.CanonicalMap())
}
