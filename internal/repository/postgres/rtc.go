package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type rtcRepository struct {
	BaseRepository
}

func NewRTCRepository(base BaseRepository) repository.RTCRepository {
	return &rtcRepository{base}
}

// roomSelect joins the appointment so callers can check participants.
const roomSelect = `
	SELECT r.id, r.room_id, r.appointment_id, r.status, r.created_by, r.max_participants,
		   r.recording_enabled, r.created_at, r.started_at, r.ended_at, r.expires_at,
		   a.patient_id, a.doctor_id
	FROM rtc_rooms r
	JOIN appointments a ON a.id = r.appointment_id`

func (r *rtcRepository) CreateRoom(ctx context.Context, room *model.RTCRoom) (*model.RTCRoom, error) {
	var stored *model.RTCRoom
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO rtc_rooms (
				id, room_id, appointment_id, status, created_by, max_participants,
				recording_enabled, created_at, started_at, ended_at, expires_at
			) VALUES (
				:id, :room_id, :appointment_id, :status, :created_by, :max_participants,
				:recording_enabled, :created_at, :started_at, :ended_at, :expires_at
			)
			ON CONFLICT (appointment_id) DO NOTHING`, room)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}

		var existing model.RTCRoom
		if err := tx.GetContext(ctx, &existing, roomSelect+` WHERE r.appointment_id = $1`, room.AppointmentID); err != nil {
			return notFound(err, "room")
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE appointments SET video_room_id = $1, updated_at = $2 WHERE id = $3`,
			existing.RoomID, time.Now().UTC(), existing.AppointmentID)
		if err != nil {
			return fmt.Errorf("failed to link room to appointment: %w", err)
		}
		stored = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *rtcRepository) GetRoom(ctx context.Context, roomID string) (*model.RTCRoom, error) {
	var room model.RTCRoom
	if err := r.db.GetContext(ctx, &room, roomSelect+` WHERE r.room_id = $1`, roomID); err != nil {
		return nil, notFound(err, "room")
	}
	return &room, nil
}

func (r *rtcRepository) GetRoomByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.RTCRoom, error) {
	var room model.RTCRoom
	if err := r.db.GetContext(ctx, &room, roomSelect+` WHERE r.appointment_id = $1`, appointmentID); err != nil {
		return nil, notFound(err, "room")
	}
	return &room, nil
}

// ListRooms returns rooms whose appointment involves userID, or every room when userID is nil.
func (r *rtcRepository) ListRooms(ctx context.Context, userID *uuid.UUID, p model.Pagination) ([]*model.RTCRoom, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if userID != nil {
		where += " AND (a.patient_id = $1 OR a.doctor_id = $1)"
		args = append(args, *userID)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM rtc_rooms r JOIN appointments a ON a.id = r.appointment_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count rooms: %w", err)
	}

	query, args := page(roomSelect+where+` ORDER BY r.created_at DESC`, args, p)
	var rooms []*model.RTCRoom
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, total, nil
}

func (r *rtcRepository) UpdateRoom(ctx context.Context, room *model.RTCRoom, from ...model.RoomStatus) error {
	allowed := make(pq.StringArray, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE rtc_rooms
		SET status = $1, started_at = $2, ended_at = $3
		WHERE id = $4 AND status = ANY($5)`,
		room.Status, room.StartedAt, room.EndedAt, room.ID, allowed)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	return expectOne(res, repository.ErrStaleState)
}

// ExpireRooms marks created or active rooms past their expiry as expired.
func (r *rtcRepository) ExpireRooms(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rtc_rooms SET status = 'expired'
		WHERE status IN ('created', 'active') AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire rooms: %w", err)
	}
	return res.RowsAffected()
}

func (r *rtcRepository) CreateSignal(ctx context.Context, s *model.RTCSignal) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO rtc_signals (id, room_id, sender_id, signal_type, payload, created_at)
		VALUES (:id, :room_id, :sender_id, :signal_type, :payload, :created_at)`, s)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}
	return nil
}

func (r *rtcRepository) ListSignals(ctx context.Context, roomPK uuid.UUID, limit int) ([]*model.RTCSignal, error) {
	var signals []*model.RTCSignal
	err := r.db.SelectContext(ctx, &signals, `
		SELECT id, room_id, sender_id, signal_type, payload, created_at
		FROM rtc_signals
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, roomPK, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	return signals, nil
}

func (r *rtcRepository) CreateJoinToken(ctx context.Context, t *model.RTCJoinToken) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO rtc_join_tokens (id, room_id, user_id, token, expires_at, created_at)
		VALUES (:id, :room_id, :user_id, :token, :expires_at, :created_at)`, t)
	if err != nil {
		return fmt.Errorf("failed to create join token: %w", err)
	}
	return nil
}

func (r *rtcRepository) ListJoinTokens(ctx context.Context, userID uuid.UUID, limit int) ([]*model.RTCJoinToken, error) {
	var tokens []*model.RTCJoinToken
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT id, room_id, user_id, token, expires_at, created_at
		FROM rtc_join_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list join tokens: %w", err)
	}
	return tokens, nil
}
