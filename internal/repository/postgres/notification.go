package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

const notificationColumns = `
	id, user_id, notification_type, channel, title, message, recipient, status, external_id,
	metadata, retry_count, last_error, next_retry_at, scheduled_at, sent_at, read_at,
	created_at, updated_at`

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (
			:id, :user_id, :notification_type, :channel, :title, :message, :recipient, :status, :external_id,
			:metadata, :retry_count, :last_error, :next_retry_at, :scheduled_at, :sent_at, :read_at,
			:created_at, :updated_at
		)`, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	if err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "notification")
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, filter *model.NotificationFilter) ([]*model.Notification, int, error) {
	where := " WHERE user_id = $1"
	args := []interface{}{filter.UserID}
	argCount := 2

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
		argCount++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(" AND notification_type = $%d", argCount)
		args = append(args, filter.Type)
		argCount++
	}
	if filter.Channel != "" {
		where += fmt.Sprintf(" AND channel = $%d", argCount)
		args = append(args, filter.Channel)
		argCount++
	}
	if filter.UnreadOnly {
		where += " AND read_at IS NULL"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query, args := page(`SELECT `+notificationColumns+` FROM notifications`+where+` ORDER BY created_at DESC`, args, filter.Pagination)
	var items []*model.Notification
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

// UpdateDelivery persists the outcome of a send attempt.
func (r *notificationRepository) UpdateDelivery(ctx context.Context, n *model.Notification) error {
	n.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE notifications SET
			status = :status, external_id = :external_id, retry_count = :retry_count,
			last_error = :last_error, next_retry_at = :next_retry_at, sent_at = :sent_at,
			updated_at = :updated_at
		WHERE id = :id`, n)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'read', read_at = COALESCE(read_at, $1), updated_at = $1
		WHERE id = $2 AND user_id = $3`, now, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'read', read_at = $1, updated_at = $1
		WHERE user_id = $2 AND read_at IS NULL`, now, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) Stats(ctx context.Context, userID *uuid.UUID) (*model.NotificationStats, error) {
	where, args := "", []interface{}{}
	if userID != nil {
		where, args = " WHERE user_id = $1", append(args, *userID)
	}

	var rows []struct {
		Type    string `db:"notification_type"`
		Channel string `db:"channel"`
		Status  string `db:"status"`
		Unread  int    `db:"unread"`
		Count   int    `db:"cnt"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT notification_type, channel, status,
			   COUNT(*) FILTER (WHERE read_at IS NULL) AS unread,
			   COUNT(*) AS cnt
		FROM notifications`+where+`
		GROUP BY notification_type, channel, status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification stats: %w", err)
	}

	stats := &model.NotificationStats{
		ByType:    map[string]int{},
		ByChannel: map[string]int{},
		ByStatus:  map[string]int{},
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.Unread += row.Unread
		stats.ByType[row.Type] += row.Count
		stats.ByChannel[row.Channel] += row.Count
		stats.ByStatus[row.Status] += row.Count
	}
	return stats, nil
}

// DueRetries returns notifications waiting for another attempt whose backoff has passed.
func (r *notificationRepository) DueRetries(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	var items []*model.Notification
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'retrying' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get retrying notifications: %w", err)
	}
	return items, nil
}
