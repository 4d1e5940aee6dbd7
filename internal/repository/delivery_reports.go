package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// DeliveryReportsRepository appends upstream delivery confirmations. Rows are
// unique on (message_id, status); re-inserting an identical report is a no-op.
type DeliveryReportsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rep model.DeliveryReport) error
	ListByMessage(ctx context.Context, messageID string) ([]model.DeliveryReport, error)
}

type DeliveryReportsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveryReportsRepository(db *sqlx.DB) *DeliveryReportsRepositoryImpl {
	return &DeliveryReportsRepositoryImpl{db: db}
}

var _ DeliveryReportsRepository = (*DeliveryReportsRepositoryImpl)(nil)

func (r *DeliveryReportsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *DeliveryReportsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rep model.DeliveryReport) error {
	const q = `
		INSERT INTO delivery_reports
		    (message_id, tracking_id, dest_addr, status, raw_payload, received_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE id = id
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			rep.MessageID, rep.TrackingID, rep.DestAddr, rep.Status, rep.RawPayload,
		)
		return err
	})
}

func (r *DeliveryReportsRepositoryImpl) ListByMessage(ctx context.Context, messageID string) ([]model.DeliveryReport, error) {
	var rows []model.DeliveryReport
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, message_id, tracking_id, dest_addr, status, raw_payload, received_at
		  FROM delivery_reports
		 WHERE message_id = ?
		 ORDER BY received_at
	`, messageID)
	return rows, err
}
