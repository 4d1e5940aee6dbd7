package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// OutboxRepository defines persistence methods for the outbox table.
type OutboxRepository interface {
	// Insert writes a single outbox event. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

// Insert adds an event row to outbox. The Debezium Outbox SMT relays it to
// Kafka based on the `topic` column; delivery-check jobs ride this path so a
// scheduled follow-up survives the request that created it.
func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, ev.Aggregate, ev.AggregateID, ev.Topic, ev.Payload)

		return err
	})
}
