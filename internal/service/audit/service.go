package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
)

// Entry is one audit record before it is stamped and stored.
type Entry struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Changes    model.JSONMap
	Metadata   model.JSONMap
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	StatusCode int
}

type Service struct {
	repo   repository.AuditRepository
	trail  *logger.AuditTrail
	logger zerolog.Logger
}

func NewService(repo repository.AuditRepository, trail *logger.AuditTrail, log zerolog.Logger) *Service {
	if trail == nil {
		trail = logger.NopAuditTrail()
	}
	return &Service{
		repo:   repo,
		trail:  trail,
		logger: log.With().Str("component", "audit").Logger(),
	}
}

// Log stores the entry and mirrors it on the audit trail. Storage failures are
// logged and dropped so they never fail the caller.
func (s *Service) Log(ctx context.Context, e Entry) {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Changes:    e.Changes,
		Metadata:   e.Metadata,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Path:       e.Path,
		Method:     e.Method,
		StatusCode: e.StatusCode,
		CreatedAt:  time.Now().UTC(),
	}

	actor := ""
	if e.UserID != nil {
		actor = e.UserID.String()
	}
	s.trail.Record(e.Action, e.EntityType, e.EntityID, actor, map[string]interface{}{
		"path":        e.Path,
		"method":      e.Method,
		"status_code": e.StatusCode,
		"ip_address":  e.IPAddress,
		"metadata":    e.Metadata,
	})

	if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn().Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("failed to store audit log")
	}
}

func (s *Service) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	return s.repo.List(ctx, filter)
}

// Cleanup deletes entries older than retentionDays.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return s.repo.DeleteBefore(ctx, cutoff)
}
