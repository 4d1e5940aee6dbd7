package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// CreditEntriesRepository is the append-only credit ledger journal. Every
// entry carries a unique idempotency key; duplicate inserts are absorbed by
// ON DUPLICATE KEY UPDATE id = id, which is what makes commit/refund
// operations safe to repeat.
type CreditEntriesRepository interface {
	ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error)
	// Insert records one ledger entry. op is one of topup|reserve|commit|refund.
	// batchID may be empty for topups. Returns false when the idempotency key
	// already existed (no row written).
	Insert(ctx context.Context, tx *sqlx.Tx, tenantID int64, op string, amount int64, batchID, idem string) (bool, error)
}

type creditEntriesRepo struct{}

func NewCreditEntriesRepository() CreditEntriesRepository { return &creditEntriesRepo{} }

func (r *creditEntriesRepo) ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error) {
	var one int
	err := tx.QueryRowxContext(ctx,
		`SELECT 1 FROM credit_ledger WHERE idempotency_key = ? LIMIT 1`, idem,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *creditEntriesRepo) Insert(ctx context.Context, tx *sqlx.Tx, tenantID int64, op string, amount int64, batchID, idem string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (tenant_id, op, amount, batch_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE id = id
	`, tenantID, op, amount, nullIfEmpty(batchID), idem)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
