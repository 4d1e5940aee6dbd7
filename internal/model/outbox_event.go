package model

import "time"

// OutboxEvent is one row awaiting relay to Kafka by the Debezium outbox
// connector.
type OutboxEvent struct {
	ID          int64     `db:"id"`
	Aggregate   string    `db:"aggregate"`    // e.g. "message"
	AggregateID string    `db:"aggregate_id"` // message.ID
	Topic       string    `db:"topic"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}
