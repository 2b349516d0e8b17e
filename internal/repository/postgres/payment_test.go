package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

const (
	lockTransactionSQL = `SELECT amount, status FROM payment_transactions WHERE id = \$1 FOR UPDATE`
	sumRefundsSQL      = `SELECT COALESCE\(SUM\(amount\), 0\)\s+FROM refunds`
)

func newMockPaymentRepo(t *testing.T) (repository.PaymentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPaymentRepository(NewBaseRepository(sqlx.NewDb(db, "postgres"))), mock
}

func newRefund(amount int64) *model.Refund {
	return &model.Refund{
		Base:          model.NewBase(),
		TransactionID: uuid.New(),
		Amount:        decimal.NewFromInt(amount),
		Reason:        "doctor absent",
		ProcessedBy:   uuid.New(),
	}
}

func expectLockedTransaction(mock sqlmock.Sqlmock, refund *model.Refund, paid, refunded string, status model.TransactionStatus) {
	mock.ExpectQuery(lockTransactionSQL).
		WithArgs(refund.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "status"}).AddRow(paid, string(status)))
	if status != model.TxnCompleted {
		return
	}
	mock.ExpectQuery(sumRefundsSQL).
		WithArgs(refund.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(refunded))
}

func TestReserveRefundPartial(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	refund := newRefund(40)

	mock.ExpectBegin()
	expectLockedTransaction(mock, refund, "100.00", "30.00", model.TxnCompleted)
	mock.ExpectExec(`INSERT INTO refunds`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	full, err := repo.ReserveRefund(context.Background(), refund)
	require.NoError(t, err)
	assert.False(t, full)
	assert.Equal(t, model.RefundProcessing, refund.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRefundTakesRemainder(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	refund := newRefund(0)

	mock.ExpectBegin()
	expectLockedTransaction(mock, refund, "100.00", "30.00", model.TxnCompleted)
	mock.ExpectExec(`INSERT INTO refunds`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	full, err := repo.ReserveRefund(context.Background(), refund)
	require.NoError(t, err)
	assert.True(t, full)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(70)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRefundRejects(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		refunded string
		status   model.TransactionStatus
		wantErr  error
	}{
		{"over what is left", 80, "30.00", model.TxnCompleted, repository.ErrOverLimit},
		{"nothing left", 0, "100.00", model.TxnCompleted, repository.ErrOverLimit},
		{"already refunded", 10, "0", model.TxnRefunded, repository.ErrStaleState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockPaymentRepo(t)
			refund := newRefund(tt.amount)

			mock.ExpectBegin()
			expectLockedTransaction(mock, refund, "100.00", tt.refunded, tt.status)
			mock.ExpectRollback()

			_, err := repo.ReserveRefund(context.Background(), refund)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCompleteFullRefund(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	refund := newRefund(70)
	refund.ExternalID = "rfnd_1"
	txn := &model.PaymentTransaction{Base: model.NewBase(), AppointmentID: uuid.New(), Status: model.TxnCompleted}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refunds SET status = 'completed'`).
		WithArgs("rfnd_1", sqlmock.AnyArg(), refund.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payment_transactions SET status = 'refunded'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE appointments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CompleteRefund(context.Background(), refund, txn, true))
	assert.Equal(t, model.RefundCompleted, refund.Status)
	assert.Equal(t, model.TxnRefunded, txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailRefundOnlyTouchesProcessing(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE refunds SET status = 'failed'`).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.FailRefund(context.Background(), id), repository.ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
