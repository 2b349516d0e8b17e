package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

const transactionColumns = `
	id, appointment_id, patient_id, provider, external_id, client_secret, amount, currency,
	status, description, metadata, failure_reason, completed_at, created_at, updated_at`

func (r *paymentRepository) CreateTransaction(ctx context.Context, txn *model.PaymentTransaction) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES (
			:id, :appointment_id, :patient_id, :provider, :external_id, :client_secret, :amount, :currency,
			:status, :description, :metadata, :failure_reason, :completed_at, :created_at, :updated_at
		)`, txn)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	if err := r.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "transaction")
	}
	return &txn, nil
}

func (r *paymentRepository) ActiveForAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	err := r.db.GetContext(ctx, &txn, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE appointment_id = $1 AND status IN ('pending', 'processing', 'completed')
		ORDER BY created_at DESC
		LIMIT 1`, appointmentID)
	if err != nil {
		return nil, notFound(err, "active transaction")
	}
	return &txn, nil
}

func (r *paymentRepository) ListTransactions(ctx context.Context, filter *model.TransactionFilter) ([]*model.PaymentTransaction, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, *filter.PatientID)
		argCount++
	}
	if filter.AppointmentID != nil {
		where += fmt.Sprintf(" AND appointment_id = $%d", argCount)
		args = append(args, *filter.AppointmentID)
		argCount++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payment_transactions`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query, args := page(`SELECT `+transactionColumns+` FROM payment_transactions`+where+` ORDER BY created_at DESC`, args, filter.Pagination)
	var txns []*model.PaymentTransaction
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, total, nil
}

func (r *paymentRepository) SetTransactionStatus(ctx context.Context, txn *model.PaymentTransaction) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn.UpdatedAt = time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_transactions
			SET status = $1, failure_reason = $2, completed_at = $3, external_id = $4, updated_at = $5
			WHERE id = $6`,
			txn.Status, txn.FailureReason, txn.CompletedAt, txn.ExternalID, txn.UpdatedAt, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := expectOne(res, repository.ErrNotFound); err != nil {
			return err
		}

		var state model.PaymentState
		switch txn.Status {
		case model.TxnCompleted:
			state = model.PaymentStateCompleted
		case model.TxnFailed, model.TxnCancelled:
			state = model.PaymentStateFailed
		default:
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE appointments
			SET payment_status = $1, payment_id = CASE WHEN $1 = 'completed' THEN $2 ELSE payment_id END,
				updated_at = $3
			WHERE id = $4 AND payment_status <> 'refunded'`,
			state, txn.ExternalID, txn.UpdatedAt, txn.AppointmentID)
		if err != nil {
			return fmt.Errorf("failed to update appointment payment: %w", err)
		}
		return nil
	})
}

const refundColumns = `
	id, transaction_id, amount, reason, status, external_id, processed_by, processed_at,
	created_at, updated_at`

// ReserveRefund locks the transaction, re-checks what is left to refund and records
// the refund as processing. A zero amount takes the whole remainder.
func (r *paymentRepository) ReserveRefund(ctx context.Context, refund *model.Refund) (bool, error) {
	var full bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked struct {
			Amount decimal.Decimal         `db:"amount"`
			Status model.TransactionStatus `db:"status"`
		}
		err := tx.GetContext(ctx, &locked,
			`SELECT amount, status FROM payment_transactions WHERE id = $1 FOR UPDATE`, refund.TransactionID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if locked.Status != model.TxnCompleted {
			return repository.ErrStaleState
		}

		var refunded decimal.Decimal
		err = tx.GetContext(ctx, &refunded, `
			SELECT COALESCE(SUM(amount), 0)
			FROM refunds
			WHERE transaction_id = $1 AND status <> 'failed'`, refund.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to sum refunds: %w", err)
		}

		remaining := locked.Amount.Sub(refunded)
		if refund.Amount.IsZero() {
			refund.Amount = remaining
		}
		if !remaining.IsPositive() || refund.Amount.GreaterThan(remaining) {
			return repository.ErrOverLimit
		}
		full = refund.Amount.Equal(remaining)

		refund.Status = model.RefundProcessing
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO refunds (`+refundColumns+`)
			VALUES (
				:id, :transaction_id, :amount, :reason, :status, :external_id, :processed_by, :processed_at,
				:created_at, :updated_at
			)`, refund)
		if err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}
		return nil
	})
	return full, err
}

// CompleteRefund settles a processing refund. A full refund also marks the transaction
// and appointment refunded.
func (r *paymentRepository) CompleteRefund(ctx context.Context, refund *model.Refund, txn *model.PaymentTransaction, full bool) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE refunds SET status = 'completed', external_id = $1, processed_at = $2, updated_at = $2
			WHERE id = $3 AND status = 'processing'`, refund.ExternalID, now, refund.ID)
		if err != nil {
			return fmt.Errorf("failed to complete refund: %w", err)
		}
		if err := expectOne(res, repository.ErrStaleState); err != nil {
			return err
		}
		refund.Status = model.RefundCompleted
		refund.ProcessedAt = &now
		if !full {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE payment_transactions SET status = 'refunded', updated_at = $1
			WHERE id = $2 AND status = 'completed'`, now, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to mark transaction refunded: %w", err)
		}
		if err := expectOne(res, repository.ErrStaleState); err != nil {
			return err
		}
		txn.Status = model.TxnRefunded

		_, err = tx.ExecContext(ctx, `
			UPDATE appointments
			SET payment_status = 'refunded',
				status = CASE WHEN status IN ('completed', 'cancelled', 'no_show') THEN 'refunded' ELSE status END,
				updated_at = $1
			WHERE id = $2`, now, txn.AppointmentID)
		if err != nil {
			return fmt.Errorf("failed to mark appointment refunded: %w", err)
		}
		return nil
	})
}

// FailRefund releases a processing refund the provider rejected.
func (r *paymentRepository) FailRefund(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refunds SET status = 'failed', updated_at = $1
		WHERE id = $2 AND status = 'processing'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark refund failed: %w", err)
	}
	return expectOne(res, repository.ErrStaleState)
}

func (r *paymentRepository) ListRefunds(ctx context.Context, p model.Pagination) ([]*model.Refund, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM refunds`); err != nil {
		return nil, 0, fmt.Errorf("failed to count refunds: %w", err)
	}

	query, args := page(`SELECT `+refundColumns+` FROM refunds ORDER BY created_at DESC`, nil, p)
	var refunds []*model.Refund
	if err := r.db.SelectContext(ctx, &refunds, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, total, nil
}

// PayableAppointments returns completed, paid appointments of the doctor in [start, end)
// that no payout covers yet.
func (r *paymentRepository) PayableAppointments(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	var appts []*model.Appointment
	err := r.db.SelectContext(ctx, &appts, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'completed'
		  AND payment_status = 'completed'
		  AND payout_id IS NULL
		  AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC`, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get payable appointments: %w", err)
	}
	return appts, nil
}

const payoutColumns = `
	id, doctor_id, amount, gross_amount, currency, status, period_start, period_end,
	appointment_count, external_id, processed_at, notes, created_at, updated_at`

func (r *paymentRepository) CreatePayout(ctx context.Context, payout *model.DoctorPayout, appointmentIDs []uuid.UUID) error {
	ids := make(pq.StringArray, len(appointmentIDs))
	for i, id := range appointmentIDs {
		ids[i] = id.String()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO doctor_payouts (`+payoutColumns+`)
			VALUES (
				:id, :doctor_id, :amount, :gross_amount, :currency, :status, :period_start, :period_end,
				:appointment_count, :external_id, :processed_at, :notes, :created_at, :updated_at
			)`, payout)
		if err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE appointments SET payout_id = $1
			WHERE id = ANY($2::uuid[]) AND payout_id IS NULL`, payout.ID, ids)
		if err != nil {
			return fmt.Errorf("failed to link payout appointments: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if int(n) != len(appointmentIDs) {
			return repository.ErrStaleState
		}
		return nil
	})
}

func (r *paymentRepository) GetPayout(ctx context.Context, id uuid.UUID) (*model.DoctorPayout, error) {
	var payout model.DoctorPayout
	if err := r.db.GetContext(ctx, &payout, `SELECT `+payoutColumns+` FROM doctor_payouts WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "payout")
	}
	return &payout, nil
}

func (r *paymentRepository) ListPayouts(ctx context.Context, filter *model.PayoutFilter) ([]*model.DoctorPayout, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *filter.DoctorID)
		argCount++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM doctor_payouts`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	query, args := page(`SELECT `+payoutColumns+` FROM doctor_payouts`+where+` ORDER BY created_at DESC`, args, filter.Pagination)
	var payouts []*model.DoctorPayout
	if err := r.db.SelectContext(ctx, &payouts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, total, nil
}

func (r *paymentRepository) UpdatePayout(ctx context.Context, payout *model.DoctorPayout) error {
	payout.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_payouts
		SET status = $1, external_id = $2, processed_at = $3, notes = $4, updated_at = $5
		WHERE id = $6`,
		payout.Status, payout.ExternalID, payout.ProcessedAt, payout.Notes, payout.UpdatedAt, payout.ID)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *paymentRepository) Earnings(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, int, decimal.Decimal, error) {
	var row struct {
		Total  decimal.Decimal `db:"total"`
		Count  int             `db:"cnt"`
		Unpaid decimal.Decimal `db:"unpaid"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(consultation_fee), 0) AS total,
			   COUNT(*) AS cnt,
			   COALESCE(SUM(consultation_fee) FILTER (WHERE payout_id IS NULL), 0) AS unpaid
		FROM appointments
		WHERE doctor_id = $1 AND status = 'completed' AND payment_status = 'completed'`, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, 0, decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, 0, decimal.Zero, fmt.Errorf("failed to get earnings: %w", err)
	}
	return row.Total, row.Count, row.Unpaid, nil
}
