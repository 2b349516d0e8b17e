package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	pkgevent "github.com/jwalitptl/telehealth-api/pkg/event"
)

const defaultRetention = 24 * time.Hour

// Service writes domain events to the outbox. The outbox processor publishes them.
type Service struct {
	outboxRepo repository.OutboxRepository
	logger     zerolog.Logger
}

var _ pkgevent.Emitter = (*Service)(nil)

func NewService(outboxRepo repository.OutboxRepository, log zerolog.Logger) *Service {
	return &Service{
		outboxRepo: outboxRepo,
		logger:     log.With().Str("component", "events").Logger(),
	}
}

func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	s.logger.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", eventType).
		Msg("event queued")
	return nil
}

// CleanupProcessedEvents drops published events older than retention, a day when unset.
func (s *Service) CleanupProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = defaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	count, err := s.outboxRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	return count, nil
}
