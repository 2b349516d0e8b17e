package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/email"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/internal/sms"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second

	// MessageType tags notifications published on the broker.
	MessageType = "notification"
)

var errNoRecipient = errors.New("user has no address for this channel")

type NotificationServicer interface {
	List(ctx context.Context, actor model.Actor, filter *model.NotificationFilter) ([]*model.Notification, int, error)
	Unread(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.Notification, int, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Notification, error)
	MarkRead(ctx context.Context, actor model.Actor, id uuid.UUID) error
	MarkAllRead(ctx context.Context, actor model.Actor) (int64, error)
	Send(ctx context.Context, actor model.Actor, req *model.SendNotificationRequest) (*model.Notification, error)
	SendBulk(ctx context.Context, actor model.Actor, req *model.BulkNotificationRequest) (int, error)
	Stats(ctx context.Context, actor model.Actor) (*model.NotificationStats, error)

	// Notify creates and delivers a notification on behalf of the system.
	Notify(ctx context.Context, req *model.SendNotificationRequest) (*model.Notification, error)
	// RetryDue re-attempts delivery of notifications whose backoff has passed.
	RetryDue(ctx context.Context, limit int) (int, error)
}

type Service struct {
	repo    repository.NotificationRepository
	users   repository.UserRepository
	email   email.Service
	sms     sms.Sender
	broker  messaging.Broker
	auditor audit.Auditor
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

var _ NotificationServicer = (*Service)(nil)

func NewService(
	repo repository.NotificationRepository,
	users repository.UserRepository,
	emailSvc email.Service,
	smsSender sms.Sender,
	broker messaging.Broker,
	auditor audit.Auditor,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		email:   emailSvc,
		sms:     smsSender,
		broker:  broker,
		auditor: auditor,
		metrics: m,
		logger:  log.With().Str("component", "notifications").Logger(),
		now:     time.Now,
	}
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter *model.NotificationFilter) ([]*model.Notification, int, error) {
	filter.UserID = actor.UserID
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "notification")
	}
	return items, total, nil
}

func (s *Service) Unread(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.Notification, int, error) {
	return s.List(ctx, actor, &model.NotificationFilter{UnreadOnly: true, Pagination: p})
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "notification")
	}
	if n.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperrors.NewNotFound("notification", nil)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, actor.UserID); err != nil {
		return service.Translate(err, "notification")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor model.Actor) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, service.Translate(err, "notification")
	}
	return n, nil
}

// Send lets admins and doctors message a user directly.
func (s *Service) Send(ctx context.Context, actor model.Actor, req *model.SendNotificationRequest) (*model.Notification, error) {
	if !actor.IsAdmin() && !actor.IsDoctor() {
		return nil, service.ErrPermission
	}
	if req.Metadata == nil {
		req.Metadata = model.JSONMap{}
	}
	req.Metadata["sent_by"] = actor.UserID.String()
	return s.Notify(ctx, req)
}

// SendBulk sends the same notification to every listed user and returns how many were
// created. Unknown users are skipped.
func (s *Service) SendBulk(ctx context.Context, actor model.Actor, req *model.BulkNotificationRequest) (int, error) {
	if !actor.IsAdmin() {
		return 0, service.ErrNotAdmin
	}
	created := 0
	for _, userID := range req.UserIDs {
		_, err := s.Notify(ctx, &model.SendNotificationRequest{
			UserID:   userID,
			Type:     req.Type,
			Channel:  req.Channel,
			Title:    req.Title,
			Message:  req.Message,
			Metadata: req.Metadata,
		})
		if err != nil {
			if apperrors.StatusOf(err) == http.StatusNotFound {
				continue
			}
			return created, err
		}
		created++
	}
	s.auditor.Log(ctx, audit.Entry{
		UserID:     &actor.UserID,
		Action:     "send_bulk",
		EntityType: model.AuditEntityNotification,
		Metadata:   model.JSONMap{"requested": len(req.UserIDs), "created": created},
	})
	return created, nil
}

// Stats covers the caller's notifications, or every notification for admins.
func (s *Service) Stats(ctx context.Context, actor model.Actor) (*model.NotificationStats, error) {
	var userID *uuid.UUID
	if !actor.IsAdmin() {
		userID = &actor.UserID
	}
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, service.Translate(err, "notification")
	}
	return stats, nil
}

func (s *Service) Notify(ctx context.Context, req *model.SendNotificationRequest) (*model.Notification, error) {
	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, service.Translate(err, "user")
	}

	now := s.now().UTC()
	n := &model.Notification{
		Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		UserID:      user.ID,
		Type:        req.Type,
		Channel:     req.Channel,
		Title:       req.Title,
		Message:     req.Message,
		Recipient:   recipient(user, req.Channel),
		Status:      model.NotificationStatusPending,
		Metadata:    req.Metadata,
		ScheduledAt: &now,
	}
	if n.Metadata == nil {
		n.Metadata = model.JSONMap{}
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, service.Translate(err, "notification")
	}

	s.attempt(ctx, n)
	return n, nil
}

func (s *Service) RetryDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.DueRetries(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load due retries: %w", err)
	}
	sent := 0
	for _, n := range due {
		if ctx.Err() != nil {
			break
		}
		if s.attempt(ctx, n) {
			sent++
		}
	}
	return sent, nil
}

// attempt delivers n once and stores the outcome. Failures are retried with linear
// backoff until maxRetries; a missing recipient fails straight away.
func (s *Service) attempt(ctx context.Context, n *model.Notification) bool {
	err := s.deliver(ctx, n)
	now := s.now().UTC()

	if err == nil {
		n.Status = model.NotificationStatusSent
		n.SentAt = &now
		n.LastError = ""
		n.NextRetryAt = nil
	} else {
		n.RetryCount++
		n.LastError = err.Error()
		if n.RetryCount >= maxRetries || errors.Is(err, errNoRecipient) {
			n.Status = model.NotificationStatusFailed
			n.NextRetryAt = nil
		} else {
			n.Status = model.NotificationStatusRetrying
			next := now.Add(retryDelay * time.Duration(n.RetryCount))
			n.NextRetryAt = &next
		}
	}
	s.metrics.NotificationsSent.WithLabelValues(n.Channel, string(n.Status)).Inc()

	if uerr := s.repo.UpdateDelivery(ctx, n); uerr != nil {
		s.logger.Error().Err(uerr).Str("notification_id", n.ID.String()).Msg("failed to store delivery outcome")
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("channel", n.Channel).
			Int("retry_count", n.RetryCount).
			Msg("notification delivery failed")
		s.auditor.Log(ctx, audit.Action(n.UserID, "send_failed", model.AuditEntityNotification, n.ID, model.JSONMap{
			"error":       err.Error(),
			"retry_count": n.RetryCount,
		}))
	}
	return err == nil
}

func (s *Service) deliver(ctx context.Context, n *model.Notification) error {
	switch n.Channel {
	case model.ChannelEmail:
		if n.Recipient == "" {
			return errNoRecipient
		}
		return s.email.Send(ctx, n.Recipient, n.Title, n.Message)
	case model.ChannelSMS:
		if n.Recipient == "" {
			return errNoRecipient
		}
		id, err := s.sms.Send(ctx, n.Recipient, n.Title+": "+n.Message)
		if err != nil {
			return err
		}
		n.ExternalID = id
		return nil
	case model.ChannelPush, model.ChannelInApp:
		return s.broker.Publish(ctx, messaging.ChannelNotifications, messaging.Message{
			Type:    MessageType,
			Payload: n,
		})
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

func recipient(u *model.User, channel string) string {
	switch channel {
	case model.ChannelEmail:
		return u.Email
	case model.ChannelSMS:
		if u.Phone != nil {
			return *u.Phone
		}
	}
	return ""
}
