package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

func newMockRepo(t *testing.T) (repository.AppointmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAppointmentRepository(NewBaseRepository(sqlx.NewDb(db, "postgres"))), mock
}

func newPendingAppointment(slotID uuid.UUID) *model.Appointment {
	return &model.Appointment{
		Base:            model.NewBase(),
		PatientID:       uuid.New(),
		SlotID:          slotID,
		AppointmentType: model.AppointmentTypeVideo,
		Status:          model.AppointmentStatusPending,
		Reason:          "headache",
		ConsultationFee: decimal.NewFromInt(50),
		PaymentStatus:   model.PaymentStatePending,
	}
}

func TestBookClaimsOpenSlot(t *testing.T) {
	repo, mock := newMockRepo(t)

	slotID := uuid.New()
	doctorID := uuid.New()
	start := time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)
	appt := newPendingAppointment(slotID)
	reminder := &model.AppointmentReminder{
		ID:             uuid.New(),
		AppointmentID:  appt.ID,
		ReminderType:   model.ReminderBookingConfirmation,
		Channel:        model.ChannelEmail,
		ScheduledFor:   time.Now().UTC(),
		DeliveryStatus: model.ReminderPending,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_slots\s+SET status = 'booked', updated_at = \$2\s+WHERE id = \$1 AND status = 'open'`).
		WithArgs(slotID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"start_time", "doctor_id"}).AddRow(start, doctorID.String()))
	mock.ExpectExec(`INSERT INTO appointments`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO appointment_reminders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Book(context.Background(), appt, []*model.AppointmentReminder{reminder})
	require.NoError(t, err)

	assert.Equal(t, start, appt.ScheduledAt)
	assert.Equal(t, doctorID, appt.DoctorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRejectsTakenSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_slots`).
		WithArgs(slotID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"start_time", "doctor_id"}))
	mock.ExpectRollback()

	err := repo.Book(context.Background(), newPendingAppointment(slotID), nil)
	assert.ErrorIs(t, err, repository.ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookMapsLiveSlotIndexViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_slots`).
		WillReturnRows(sqlmock.NewRows([]string{"start_time", "doctor_id"}).AddRow(time.Now(), uuid.NewString()))
	mock.ExpectExec(`INSERT INTO appointments`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.Book(context.Background(), newPendingAppointment(slotID), nil)
	assert.ErrorIs(t, err, repository.ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelDetectsConcurrentChange(t *testing.T) {
	repo, mock := newMockRepo(t)
	appt := newPendingAppointment(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE appointments\s+SET status = 'cancelled'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), appt, model.AppointmentStatusPending)
	assert.ErrorIs(t, err, repository.ErrStaleState)
	assert.Equal(t, model.AppointmentStatusPending, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelReopensSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	appt := newPendingAppointment(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE appointments\s+SET status = 'cancelled'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE schedule_slots SET status = 'open'`).
		WithArgs(appt.SlotID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM appointment_reminders`).
		WithArgs(appt.ID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.Cancel(context.Background(), appt, model.AppointmentStatusPending)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRejectsOtherDoctorsSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	appt := newPendingAppointment(uuid.New())
	appt.DoctorID = uuid.New()
	change := &model.AppointmentReschedule{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		OldSlotID:     appt.SlotID,
		NewSlotID:     uuid.New(),
		RequestedBy:   appt.PatientID,
		CreatedAt:     time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_slots`).
		WithArgs(change.NewSlotID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"start_time", "doctor_id"}).AddRow(time.Now(), uuid.NewString()))
	mock.ExpectRollback()

	err := repo.Reschedule(context.Background(), appt, change, nil)
	assert.ErrorIs(t, err, repository.ErrSlotUnavailable)
	assert.Equal(t, change.OldSlotID, appt.SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
