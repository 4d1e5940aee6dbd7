package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// CHMessagesRepository lists messages from ClickHouse (final view fed from the
// MySQL messages table; the report endpoint reads here, not the OLTP store).
type CHMessagesRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, destAddr string, status model.MessageStatus, limit, offset int) ([]model.Message, error)
}

type chMessagesRepository struct {
	ch *sqlx.DB
}

func NewCHMessagesRepository(ch *sqlx.DB) CHMessagesRepository {
	return &chMessagesRepository{ch: ch}
}

func (r *chMessagesRepository) ListByTenant(ctx context.Context, tenantID int64, destAddr string, status model.MessageStatus, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, batch_id, tenant_id, sender, provider, dest_addr, encoding,
		       segments, cost_credits, status, created_at, updated_at
		FROM smsgw.messages_latest
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if destAddr != "" {
		q += " AND dest_addr = ?"
		args = append(args, destAddr)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Message
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
