package delivery

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/repository"
)

func newApplierForTest(t *testing.T) (*Applier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sdb := sqlx.NewDb(db, "mysql")
	a := NewApplier(sdb, repository.NewMessagesRepository(sdb), repository.NewDeliveryReportsRepository(sdb), zap.NewNop())
	return a, mock
}

func sentMessage() *model.Message {
	tracking := "35462"
	return &model.Message{
		ID:         "01MSG",
		TenantID:   7,
		DestAddr:   "255712000111",
		Encoding:   "gsm7",
		Status:     model.StatusSent,
		TrackingID: &tracking,
	}
}

func TestApplier_Apply_Delivered(t *testing.T) {
	a, mock := newApplierForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO delivery_reports").
		WithArgs("01MSG", "35462", "255712000111", "DELIVERED", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE messages").
		WithArgs("01MSG").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := a.Apply(context.Background(), sentMessage(), dispatcher.DeliveryDelivered, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_AlreadyTerminal(t *testing.T) {
	a, mock := newApplierForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO delivery_reports").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// guarded transition matches no rows once the message left `sent`
	mock.ExpectExec("UPDATE messages").
		WithArgs("01MSG").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, err := a.Apply(context.Background(), sentMessage(), dispatcher.DeliveryUndelivered, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_PendingOnlyJournals(t *testing.T) {
	a, mock := newApplierForTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO delivery_reports").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	changed, err := a.Apply(context.Background(), sentMessage(), dispatcher.DeliveryPending, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_ApplyByTracking_UnknownMessage(t *testing.T) {
	a, mock := newApplierForTest(t)

	mock.ExpectQuery("FROM messages").
		WithArgs("999", "255712000111").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	changed, err := a.ApplyByTracking(context.Background(), "999", "255712000111", dispatcher.DeliveryDelivered, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}
