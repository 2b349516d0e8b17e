package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `
	id, patient_id, doctor_id, slot_id, appointment_type, status, reason, symptoms,
	medical_history, video_room_id, consultation_fee, payment_status, payment_id,
	scheduled_at, started_at, ended_at, duration_minutes, doctor_notes, patient_feedback,
	requires_follow_up, follow_up_date, cancellation_reason, cancelled_by, payout_id,
	created_at, updated_at`

var appointmentOrderings = map[string]string{
	"scheduled_at":  "scheduled_at ASC",
	"-scheduled_at": "scheduled_at DESC",
	"created_at":    "created_at ASC",
	"-created_at":   "created_at DESC",
}

// claimSlot flips an open slot to booked. It is the only path by which a slot becomes
// booked, so two concurrent claims on one slot cannot both succeed.
func claimSlot(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID) (time.Time, uuid.UUID, error) {
	var row struct {
		StartTime time.Time `db:"start_time"`
		DoctorID  uuid.UUID `db:"doctor_id"`
	}
	err := tx.GetContext(ctx, &row, `
		UPDATE schedule_slots
		SET status = 'booked', updated_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING start_time, doctor_id`, slotID, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, uuid.Nil, repository.ErrSlotUnavailable
	}
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	return row.StartTime, row.DoctorID, nil
}

func releaseSlot(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE schedule_slots SET status = 'open', updated_at = $2 WHERE id = $1 AND status = 'booked'`,
		slotID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

func insertReminders(ctx context.Context, ext sqlx.ExtContext, reminders []*model.AppointmentReminder) error {
	for _, rem := range reminders {
		_, err := sqlx.NamedExecContext(ctx, ext, `
			INSERT INTO appointment_reminders (
				id, appointment_id, reminder_type, channel, scheduled_for, sent_at,
				delivery_status, created_at
			) VALUES (
				:id, :appointment_id, :reminder_type, :channel, :scheduled_for, :sent_at,
				:delivery_status, :created_at
			)`, rem)
		if err != nil {
			return fmt.Errorf("failed to create reminder: %w", err)
		}
	}
	return nil
}

func dropPendingReminders(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM appointment_reminders WHERE appointment_id = $1 AND delivery_status = 'pending'`,
		appointmentID)
	if err != nil {
		return fmt.Errorf("failed to drop reminders: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Book(ctx context.Context, appt *model.Appointment, reminders []*model.AppointmentReminder) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		start, doctorID, err := claimSlot(ctx, tx, appt.SlotID)
		if err != nil {
			return err
		}
		appt.ScheduledAt = start
		appt.DoctorID = doctorID

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES (
				:id, :patient_id, :doctor_id, :slot_id, :appointment_type, :status, :reason, :symptoms,
				:medical_history, :video_room_id, :consultation_fee, :payment_status, :payment_id,
				:scheduled_at, :started_at, :ended_at, :duration_minutes, :doctor_notes, :patient_feedback,
				:requires_follow_up, :follow_up_date, :cancellation_reason, :cancelled_by, :payout_id,
				:created_at, :updated_at
			)`, appt)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrSlotUnavailable
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		return insertReminders(ctx, tx, reminders)
	})
}

func (r *appointmentRepository) Cancel(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		appt.UpdatedAt = time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = 'cancelled', cancellation_reason = $1, cancelled_by = $2, updated_at = $3
			WHERE id = $4 AND status = $5`,
			appt.CancellationReason, appt.CancelledBy, appt.UpdatedAt, appt.ID, from)
		if err != nil {
			return fmt.Errorf("failed to cancel appointment: %w", err)
		}
		if err := expectOne(res, repository.ErrStaleState); err != nil {
			return err
		}
		appt.Status = model.AppointmentStatusCancelled

		if err := releaseSlot(ctx, tx, appt.SlotID); err != nil {
			return err
		}
		return dropPendingReminders(ctx, tx, appt.ID)
	})
}

func (r *appointmentRepository) Reschedule(ctx context.Context, appt *model.Appointment, change *model.AppointmentReschedule, reminders []*model.AppointmentReminder) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		start, doctorID, err := claimSlot(ctx, tx, change.NewSlotID)
		if err != nil {
			return err
		}
		if doctorID != appt.DoctorID {
			return repository.ErrSlotUnavailable
		}

		if err := releaseSlot(ctx, tx, change.OldSlotID); err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET slot_id = $1, scheduled_at = $2, updated_at = $3
			WHERE id = $4 AND slot_id = $5 AND status IN ('pending', 'confirmed')`,
			change.NewSlotID, start, now, appt.ID, change.OldSlotID)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrSlotUnavailable
			}
			return fmt.Errorf("failed to move appointment: %w", err)
		}
		if err := expectOne(res, repository.ErrStaleState); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO appointment_reschedules (
				id, appointment_id, old_slot_id, new_slot_id, reason, requested_by, created_at
			) VALUES (
				:id, :appointment_id, :old_slot_id, :new_slot_id, :reason, :requested_by, :created_at
			)`, change)
		if err != nil {
			return fmt.Errorf("failed to record reschedule: %w", err)
		}

		if err := dropPendingReminders(ctx, tx, appt.ID); err != nil {
			return err
		}
		if err := insertReminders(ctx, tx, reminders); err != nil {
			return err
		}

		appt.SlotID = change.NewSlotID
		appt.ScheduledAt = start
		appt.UpdatedAt = now
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appt model.Appointment
	err := r.db.GetContext(ctx, &appt, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "appointment")
	}
	return &appt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	appt.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE appointments
		SET status = $1, started_at = $2, ended_at = $3, duration_minutes = $4,
			doctor_notes = $5, patient_feedback = $6, requires_follow_up = $7,
			follow_up_date = $8, video_room_id = $9, payment_status = $10,
			payment_id = $11, updated_at = $12
		WHERE id = $13 AND status = $14
	`
	res, err := r.db.ExecContext(ctx, query,
		appt.Status,
		appt.StartedAt,
		appt.EndedAt,
		appt.DurationMinutes,
		appt.DoctorNotes,
		appt.PatientFeedback,
		appt.RequiresFollowUp,
		appt.FollowUpDate,
		appt.VideoRoomID,
		appt.PaymentStatus,
		appt.PaymentID,
		appt.UpdatedAt,
		appt.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return expectOne(res, repository.ErrStaleState)
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, *filter.PatientID)
		argCount++
	}
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
	if filter.AppointmentType != "" {
		where += fmt.Sprintf(" AND appointment_type = $%d", argCount)
		args = append(args, filter.AppointmentType)
		argCount++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND scheduled_at < $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}
	if filter.UpcomingOnly {
		where += fmt.Sprintf(" AND scheduled_at > $%d AND status IN ('pending', 'confirmed')", argCount)
		args = append(args, time.Now().UTC())
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	order, ok := appointmentOrderings[filter.Ordering]
	if !ok {
		order = "scheduled_at DESC"
	}
	query, args := page(`SELECT `+appointmentColumns+` FROM appointments`+where+` ORDER BY `+order, args, filter.Pagination)

	var appts []*model.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appts, total, nil
}

func (r *appointmentRepository) HasCompleted(ctx context.Context, patientID, doctorUserID, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE id = $1 AND patient_id = $2 AND doctor_id = $3 AND status = 'completed'
		)`, appointmentID, patientID, doctorUserID)
	if err != nil {
		return false, fmt.Errorf("failed to check appointment: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) AddReminders(ctx context.Context, reminders []*model.AppointmentReminder) error {
	return insertReminders(ctx, r.db, reminders)
}

const reminderColumns = `id, appointment_id, reminder_type, channel, scheduled_for, sent_at, delivery_status, created_at`

func (r *appointmentRepository) ListReminders(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error) {
	var reminders []*model.AppointmentReminder
	err := r.db.SelectContext(ctx, &reminders, `
		SELECT `+reminderColumns+`
		FROM appointment_reminders
		WHERE appointment_id = $1
		ORDER BY scheduled_for ASC`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

// DueReminders returns pending reminders whose time has come, skipping those of
// cancelled or refunded appointments.
func (r *appointmentRepository) DueReminders(ctx context.Context, now time.Time, limit int) ([]*model.AppointmentReminder, error) {
	var reminders []*model.AppointmentReminder
	err := r.db.SelectContext(ctx, &reminders, `
		SELECT r.id, r.appointment_id, r.reminder_type, r.channel, r.scheduled_for,
			   r.sent_at, r.delivery_status, r.created_at
		FROM appointment_reminders r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.delivery_status = 'pending'
		  AND r.scheduled_for <= $1
		  AND a.status NOT IN ('cancelled', 'refunded')
		ORDER BY r.scheduled_for ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due reminders: %w", err)
	}
	return reminders, nil
}

func (r *appointmentRepository) MarkReminder(ctx context.Context, id uuid.UUID, status model.ReminderStatus, sentAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointment_reminders SET delivery_status = $1, sent_at = $2 WHERE id = $3`,
		status, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}
