package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

type SendersRepository interface {
	// GetActive returns the identity only when it is owned by tenantID and in
	// status active; anything else is (nil, nil).
	GetActive(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error)
	Get(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error)
	// EnsureDefault idempotently creates the reserved default identity in
	// status active and returns it.
	EnsureDefault(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error)
	Insert(ctx context.Context, tenantID int64, identifier, sampleContent string) (*model.SenderIdentity, error)
	// SetStatus records a reviewer transition. Returns the number of rows
	// changed (0 when the identity was already in the target status).
	SetStatus(ctx context.Context, tenantID int64, identifier string, status model.SenderStatus, reviewer, reason string) (int64, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]model.SenderIdentity, error)
}

type SendersRepositoryImpl struct {
	db *sqlx.DB
}

func NewSendersRepository(db *sqlx.DB) *SendersRepositoryImpl {
	return &SendersRepositoryImpl{db: db}
}

var _ SendersRepository = (*SendersRepositoryImpl)(nil)

const senderCols = `id, tenant_id, identifier, sample_content, status, reviewed_by, reviewed_at, review_reason, created_at, updated_at`

func (r *SendersRepositoryImpl) GetActive(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error) {
	var s model.SenderIdentity
	err := r.db.GetContext(ctx, &s, `
		SELECT `+senderCols+`
		  FROM sender_identities
		 WHERE tenant_id = ? AND identifier = ? AND status = 'active'
		 LIMIT 1
	`, tenantID, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SendersRepositoryImpl) Get(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error) {
	var s model.SenderIdentity
	err := r.db.GetContext(ctx, &s, `
		SELECT `+senderCols+`
		  FROM sender_identities
		 WHERE tenant_id = ? AND identifier = ?
		 LIMIT 1
	`, tenantID, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SendersRepositoryImpl) EnsureDefault(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sender_identities
		    (tenant_id, identifier, sample_content, status, created_at, updated_at)
		VALUES (?, ?, 'Default sender', 'active', NOW(), NOW())
		ON DUPLICATE KEY UPDATE updated_at = updated_at
	`, tenantID, identifier)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, tenantID, identifier)
}

func (r *SendersRepositoryImpl) Insert(ctx context.Context, tenantID int64, identifier, sampleContent string) (*model.SenderIdentity, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sender_identities
		    (tenant_id, identifier, sample_content, status, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', NOW(), NOW())
	`, tenantID, identifier, sampleContent)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, tenantID, identifier)
}

func (r *SendersRepositoryImpl) SetStatus(ctx context.Context, tenantID int64, identifier string, status model.SenderStatus, reviewer, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_identities
		   SET status = ?, reviewed_by = ?, reviewed_at = NOW(),
		       review_reason = ?, updated_at = NOW()
		 WHERE tenant_id = ? AND identifier = ? AND status <> ?
	`, status.String(), reviewer, nullIfEmpty(reason), tenantID, identifier, status.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SendersRepositoryImpl) ListByTenant(ctx context.Context, tenantID int64) ([]model.SenderIdentity, error) {
	var rows []model.SenderIdentity
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+senderCols+`
		  FROM sender_identities
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC
	`, tenantID)
	return rows, err
}
