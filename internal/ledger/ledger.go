// Package ledger owns all mutation of tenant credit balances. Reservations
// are debited up front inside one transaction holding a row lock on the
// balance, so concurrent sends against the same tenant serialize here and can
// never jointly overdraw. Commit and Release are idempotent through
// op-prefixed ledger keys.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/repository"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// Reservation is the scoped resource handed out by Reserve. Every exit path
// of a send must end it with exactly one Commit or Release.
type Reservation struct {
	TenantID int64
	BatchID  string
	Amount   int64
}

type Ledger struct {
	db       *sqlx.DB
	balances repository.BalancesRepository
	entries  repository.CreditEntriesRepository
}

func New(db *sqlx.DB, balances repository.BalancesRepository, entries repository.CreditEntriesRepository) *Ledger {
	return &Ledger{db: db, balances: balances, entries: entries}
}

// ReserveTx debits amount from the tenant's balance within the caller's
// transaction: credits -= amount, total_used += amount, plus a reserve ledger
// entry. The balance row is created lazily and locked FOR UPDATE before the
// check, so two concurrent reservations cannot both pass on the same credit.
func (l *Ledger) ReserveTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, batchID string, amount int64) (Reservation, error) {
	if err := l.balances.Upsert(ctx, tx, tenantID); err != nil {
		return Reservation{}, fmt.Errorf("balance upsert: %w", err)
	}

	bal, err := l.balances.GetForUpdate(ctx, tx, tenantID)
	if err != nil {
		return Reservation{}, fmt.Errorf("balance lock: %w", err)
	}
	if bal.Credits < amount {
		return Reservation{}, ErrInsufficientCredits
	}

	if err := l.balances.Adjust(ctx, tx, tenantID, -amount, 0, +amount); err != nil {
		return Reservation{}, fmt.Errorf("balance reserve: %w", err)
	}
	if _, err := l.entries.Insert(ctx, tx, tenantID, "reserve", amount, batchID, "reserve-"+batchID); err != nil {
		return Reservation{}, fmt.Errorf("ledger reserve entry: %w", err)
	}

	return Reservation{TenantID: tenantID, BatchID: batchID, Amount: amount}, nil
}

// CommitTx finalizes a reservation after confirmed dispatch. The credits were
// already debited at reserve time; committing only journals the entry.
// A duplicate commit is a no-op.
func (l *Ledger) CommitTx(ctx context.Context, tx *sqlx.Tx, res Reservation) error {
	if _, err := l.entries.Insert(ctx, tx, res.TenantID, "commit", res.Amount, res.BatchID, "commit-"+res.BatchID); err != nil {
		return fmt.Errorf("ledger commit entry: %w", err)
	}
	return nil
}

// ReleaseTx refunds a reservation after a failed dispatch: credits += amount,
// total_used -= amount. Idempotent, and a no-op once the reservation has been
// committed (the message was billed, refunding would double-credit).
func (l *Ledger) ReleaseTx(ctx context.Context, tx *sqlx.Tx, res Reservation) error {
	committed, err := l.entries.ExistsByIdem(ctx, tx, "commit-"+res.BatchID)
	if err != nil {
		return fmt.Errorf("ledger commit lookup: %w", err)
	}
	if committed {
		return nil
	}

	inserted, err := l.entries.Insert(ctx, tx, res.TenantID, "refund", res.Amount, res.BatchID, "refund-"+res.BatchID)
	if err != nil {
		return fmt.Errorf("ledger refund entry: %w", err)
	}
	if !inserted {
		// already refunded
		return nil
	}

	if err := l.balances.Adjust(ctx, tx, res.TenantID, +res.Amount, 0, -res.Amount); err != nil {
		return fmt.Errorf("balance refund: %w", err)
	}
	return nil
}

// Topup credits a purchase in its own transaction, idempotent on requestID.
// Returns true when the topup had already been applied.
func (l *Ledger) Topup(ctx context.Context, tenantID, amount int64, requestID string) (bool, error) {
	idem := "topup-" + requestID

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := l.balances.Upsert(ctx, tx, tenantID); err != nil {
		return false, fmt.Errorf("balance upsert: %w", err)
	}

	inserted, err := l.entries.Insert(ctx, tx, tenantID, "topup", amount, "", idem)
	if err != nil {
		return false, fmt.Errorf("ledger topup entry: %w", err)
	}
	if !inserted {
		return true, tx.Commit()
	}

	if err := l.balances.Adjust(ctx, tx, tenantID, +amount, +amount, 0); err != nil {
		return false, fmt.Errorf("balance topup: %w", err)
	}
	return false, tx.Commit()
}
