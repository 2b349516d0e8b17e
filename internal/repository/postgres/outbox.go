package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, 0, $5, $6
		)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	event.Status = string(model.OutboxStatusPending)

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ClaimPending moves a batch of pending events to PROCESSING. Concurrent workers skip
// rows another worker has locked.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $3
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $4
		)
		RETURNING id, event_type, payload, status, error_message, created_at, processed_at,
				  updated_at, retry_count
	`
	var events []*model.OutboxEvent
	err := r.db.SelectContext(ctx, &events, query,
		string(model.OutboxStatusProcessing),
		time.Now().UTC(),
		string(model.OutboxStatusPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryCount int) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = $3,
			processed_at = CASE WHEN $1 = 'PROCESSED' THEN $4 ELSE processed_at END,
			updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, string(status), errMsg, retryCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
