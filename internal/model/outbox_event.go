package model

import "time"

// OutboxEvent is relayed to Kafka by Debezium's outbox router.
type OutboxEvent struct {
	ID          int64     `db:"id"`
	Aggregate   string    `db:"aggregate"`    // e.g. "transaction"
	AggregateID string    `db:"aggregate_id"` // transaction.ID
	Topic       string    `db:"topic"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}
