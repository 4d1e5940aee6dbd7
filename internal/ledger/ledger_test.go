package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembohq/sms-gateway/internal/repository"
)

func newLedgerForTest(t *testing.T) (*Ledger, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sdb := sqlx.NewDb(db, "mysql")
	l := New(sdb, repository.NewBalancesRepository(), repository.NewCreditEntriesRepository())
	return l, sdb, mock
}

func balanceRows(credits, purchased, used int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"tenant_id", "credits", "total_purchased", "total_used"}).
		AddRow(7, credits, purchased, used)
}

func TestLedger_ReserveTx_DebitsAndJournals(t *testing.T) {
	l, db, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_balances").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT tenant_id, credits, total_purchased, total_used").
		WithArgs(int64(7)).
		WillReturnRows(balanceRows(100, 100, 0))
	mock.ExpectExec("UPDATE credit_balances").
		WithArgs(int64(-5), int64(0), int64(5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "reserve", int64(5), "01BATCH", "reserve-01BATCH").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	res, err := l.ReserveTx(context.Background(), tx, 7, "01BATCH", 5)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, Reservation{TenantID: 7, BatchID: "01BATCH", Amount: 5}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReserveTx_InsufficientCredits(t *testing.T) {
	l, db, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_balances").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT tenant_id, credits, total_purchased, total_used").
		WithArgs(int64(7)).
		WillReturnRows(balanceRows(3, 10, 7))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	_, err = l.ReserveTx(context.Background(), tx, 7, "01BATCH", 5)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_CommitTx_Idempotent(t *testing.T) {
	l, db, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "commit", int64(5), "01BATCH", "commit-01BATCH").
		WillReturnResult(sqlmock.NewResult(2, 1))
	// duplicate key absorbed, zero rows affected
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "commit", int64(5), "01BATCH", "commit-01BATCH").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	res := Reservation{TenantID: 7, BatchID: "01BATCH", Amount: 5}
	require.NoError(t, l.CommitTx(context.Background(), tx, res))
	require.NoError(t, l.CommitTx(context.Background(), tx, res))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReleaseTx_RefundsOnce(t *testing.T) {
	l, db, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM credit_ledger").
		WithArgs("commit-01BATCH").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "refund", int64(5), "01BATCH", "refund-01BATCH").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("UPDATE credit_balances").
		WithArgs(int64(5), int64(0), int64(-5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// second release: refund entry already present, balance untouched
	mock.ExpectQuery("SELECT 1 FROM credit_ledger").
		WithArgs("commit-01BATCH").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "refund", int64(5), "01BATCH", "refund-01BATCH").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	res := Reservation{TenantID: 7, BatchID: "01BATCH", Amount: 5}
	require.NoError(t, l.ReleaseTx(context.Background(), tx, res))
	require.NoError(t, l.ReleaseTx(context.Background(), tx, res))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReleaseTx_NoRefundAfterCommit(t *testing.T) {
	l, db, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM credit_ledger").
		WithArgs("commit-01BATCH").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	res := Reservation{TenantID: 7, BatchID: "01BATCH", Amount: 5}
	require.NoError(t, l.ReleaseTx(context.Background(), tx, res))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Topup_CreditsPurchase(t *testing.T) {
	l, _, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_balances").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "topup", int64(200), nil, "topup-req-42").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectExec("UPDATE credit_balances").
		WithArgs(int64(200), int64(200), int64(0), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	already, err := l.Topup(context.Background(), 7, 200, "req-42")
	require.NoError(t, err)
	assert.False(t, already)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Topup_Replay(t *testing.T) {
	l, _, mock := newLedgerForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_balances").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(int64(7), "topup", int64(200), nil, "topup-req-42").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	already, err := l.Topup(context.Background(), 7, 200, "req-42")
	require.NoError(t, err)
	assert.True(t, already)

	assert.NoError(t, mock.ExpectationsWereMet())
}
