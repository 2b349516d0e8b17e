package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type slotRepository struct {
	BaseRepository
}

func NewSlotRepository(base BaseRepository) repository.SlotRepository {
	return &slotRepository{base}
}

const slotColumns = `id, doctor_id, start_time, end_time, duration_minutes, status, notes, created_at, updated_at`

const insertSlot = `
	INSERT INTO schedule_slots (` + slotColumns + `)
	VALUES (:id, :doctor_id, :start_time, :end_time, :duration_minutes, :status, :notes, :created_at, :updated_at)`

func (r *slotRepository) Create(ctx context.Context, slot *model.ScheduleSlot) error {
	_, err := r.db.NamedExecContext(ctx, insertSlot, slot)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *slotRepository) CreateBatch(ctx context.Context, slots []*model.ScheduleSlot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insertSlot+` ON CONFLICT (doctor_id, start_time) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare slot insert: %w", err)
		}
		defer stmt.Close()

		for _, slot := range slots {
			res, err := stmt.ExecContext(ctx, slot)
			if err != nil {
				return fmt.Errorf("failed to insert slot: %w", err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleSlot, error) {
	var slot model.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM schedule_slots WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "slot")
	}
	return &slot, nil
}

func (r *slotRepository) List(ctx context.Context, filter *model.SlotFilter) ([]*model.ScheduleSlot, int, error) {
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
	if filter.From != nil {
		where += fmt.Sprintf(" AND start_time >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND start_time < $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedule_slots`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count slots: %w", err)
	}

	query, args := page(`SELECT `+slotColumns+` FROM schedule_slots`+where+` ORDER BY start_time ASC`, args, filter.Pagination)
	var slots []*model.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, total, nil
}

func (r *slotRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to model.SlotStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE schedule_slots SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update slot status: %w", err)
	}
	return expectOne(res, repository.ErrStaleState)
}

// Delete removes a slot that is not booked. Slots referenced by past or
// rescheduled appointments return repository.ErrInUse.
func (r *slotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE id = $1 AND status <> 'booked'`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrInUse
		}
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return expectOne(res, repository.ErrStaleState)
}
