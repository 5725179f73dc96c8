package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a bus envelope waiting in the command store to be produced.
type OutboxEvent struct {
	ID            int64             `db:"id"`
	AggregateType string            `db:"aggregate_type"`
	AggregateID   string            `db:"aggregate_id"`
	EventType     string            `db:"event_type"`
	Payload       json.RawMessage   `db:"payload"`
	Headers       map[string]string `db:"headers"`
	CreatedAt     time.Time         `db:"created_at"`
	PublishedAt   *time.Time        `db:"published_at"`
	Attempts      int               `db:"attempts"`
	LastError     *string           `db:"last_error"`
	Topic         string            `db:"topic"`
}
