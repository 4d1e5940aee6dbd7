package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// MessagesRepository persists outbound messages. Status transitions out of
// `sent` are guarded in SQL so late or duplicate delivery reports can never
// mutate a terminal row.
type MessagesRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, msgs []model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// MarkSent moves queued rows to sent and records the provider tracking id.
	MarkSent(ctx context.Context, tx *sqlx.Tx, ids []string, provider, trackingID string) error
	// MarkFailed moves queued rows to terminal failed with the normalized error.
	MarkFailed(ctx context.Context, tx *sqlx.Tx, ids []string, errCode, errMsg string) error
	// MarkDelivered/MarkUndelivered transition only rows still in sent;
	// the returned count is 0 for already-terminal rows.
	MarkDelivered(ctx context.Context, tx *sqlx.Tx, id string) (int64, error)
	MarkUndelivered(ctx context.Context, tx *sqlx.Tx, id string) (int64, error)
	GetByTracking(ctx context.Context, trackingID, destAddr string) (*model.Message, error)
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

func (r *MessagesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *MessagesRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO messages
		    (id, batch_id, tenant_id, sender_id, sender, provider, dest_addr,
		     body, encoding, segments, cost_credits, status, created_at, updated_at)
		VALUES
		    (:id, :batch_id, :tenant_id, :sender_id, :sender, :provider, :dest_addr,
		     :body, :encoding, :segments, :cost_credits, :status, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, msgs)
		return err
	})
}

const messageCols = `id, batch_id, tenant_id, sender_id, sender, provider, dest_addr, body,
	encoding, segments, cost_credits, status, tracking_id, error_code, error_message,
	created_at, sent_at, delivered_at, failed_at, updated_at`

func (r *MessagesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `SELECT `+messageCols+` FROM messages WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessagesRepositoryImpl) GetByTracking(ctx context.Context, trackingID, destAddr string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `
		SELECT `+messageCols+` FROM messages
		 WHERE tracking_id = ? AND dest_addr = ? LIMIT 1
	`, trackingID, destAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessagesRepositoryImpl) MarkSent(ctx context.Context, tx *sqlx.Tx, ids []string, provider, trackingID string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE messages
		   SET status = 'sent', provider = ?, tracking_id = ?, sent_at = NOW(), updated_at = NOW()
		 WHERE id IN (?) AND status = 'queued'
	`, provider, trackingID, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (r *MessagesRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, ids []string, errCode, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE messages
		   SET status = 'failed', error_code = ?, error_message = ?,
		       failed_at = NOW(), updated_at = NOW()
		 WHERE id IN (?) AND status = 'queued'
	`, errCode, errMsg, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (r *MessagesRepositoryImpl) MarkDelivered(ctx context.Context, tx *sqlx.Tx, id string) (int64, error) {
	return r.transition(ctx, tx, id, `
		UPDATE messages
		   SET status = 'delivered', delivered_at = NOW(), updated_at = NOW()
		 WHERE id = ? AND status = 'sent'
	`)
}

func (r *MessagesRepositoryImpl) MarkUndelivered(ctx context.Context, tx *sqlx.Tx, id string) (int64, error) {
	return r.transition(ctx, tx, id, `
		UPDATE messages
		   SET status = 'undelivered', failed_at = NOW(), updated_at = NOW()
		 WHERE id = ? AND status = 'sent'
	`)
}

func (r *MessagesRepositoryImpl) transition(ctx context.Context, tx *sqlx.Tx, id, query string) (int64, error) {
	var n int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
