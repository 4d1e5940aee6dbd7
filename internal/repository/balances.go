package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// BalancesRepository persists per-tenant credit balances. All mutations happen
// inside a caller-owned transaction so the ledger can keep balance, entry and
// message writes atomic.
type BalancesRepository interface {
	// Upsert lazily creates the zero balance row on first reference.
	Upsert(ctx context.Context, tx *sqlx.Tx, tenantID int64) error
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64) (model.CreditBalance, error)
	// Adjust applies signed deltas to credits/total_purchased/total_used.
	Adjust(ctx context.Context, tx *sqlx.Tx, tenantID, dCredits, dPurchased, dUsed int64) error
}

type balancesRepo struct{}

func NewBalancesRepository() BalancesRepository { return &balancesRepo{} }

func (r *balancesRepo) Upsert(ctx context.Context, tx *sqlx.Tx, tenantID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_balances (tenant_id, credits, total_purchased, total_used, created_at, updated_at)
		VALUES (?, 0, 0, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)
	`, tenantID)
	return err
}

func (r *balancesRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64) (model.CreditBalance, error) {
	var b model.CreditBalance
	err := tx.QueryRowxContext(ctx, `
		SELECT tenant_id, credits, total_purchased, total_used
		FROM credit_balances
		WHERE tenant_id = ?
		FOR UPDATE
	`, tenantID).Scan(&b.TenantID, &b.Credits, &b.TotalPurchased, &b.TotalUsed)
	return b, err
}

func (r *balancesRepo) Adjust(ctx context.Context, tx *sqlx.Tx, tenantID, dCredits, dPurchased, dUsed int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE credit_balances
		SET credits = credits + ?, total_purchased = total_purchased + ?,
		    total_used = total_used + ?, updated_at = NOW()
		WHERE tenant_id = ?
	`, dCredits, dPurchased, dUsed, tenantID)
	return err
}
