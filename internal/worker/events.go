package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
)

// eventPayload holds the fields the tracked routes put on their events.
type eventPayload struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	CancelledBy    *uuid.UUID `json:"cancelled_by"`
	MedicationName string     `json:"medication_name"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
}

// EventConsumer turns domain events from the outbox into in-app notifications.
type EventConsumer struct {
	broker   messaging.MessageBroker
	notifier Notifier
	logger   zerolog.Logger
}

func NewEventConsumer(broker messaging.MessageBroker, notifier Notifier, logger zerolog.Logger) *EventConsumer {
	return &EventConsumer{
		broker:   broker,
		notifier: notifier,
		logger:   logger.With().Str("component", "event_consumer").Logger(),
	}
}

// Start subscribes to the events channel. Messages are handled until ctx is done.
func (c *EventConsumer) Start(ctx context.Context) error {
	return c.broker.Subscribe(ctx, messaging.ChannelEvents, func(raw []byte) error {
		return c.Handle(ctx, raw)
	})
}

func (c *EventConsumer) Handle(ctx context.Context, raw []byte) error {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	var p eventPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}

	reqs := notificationsFor(msg.Type, &p)
	if reqs == nil {
		c.logger.Debug().Str("event_type", msg.Type).Msg("no notification for event")
		return nil
	}
	for _, req := range reqs {
		if req.UserID == uuid.Nil {
			continue
		}
		if _, err := c.notifier.Notify(ctx, req); err != nil {
			c.logger.Warn().Err(err).
				Str("event_type", msg.Type).
				Str("user_id", req.UserID.String()).
				Msg("failed to notify")
		}
	}
	return nil
}

func notificationsFor(eventType string, p *eventPayload) []*model.SendNotificationRequest {
	meta := func() model.JSONMap {
		return model.JSONMap{"event_type": eventType, "entity_id": p.ID.String()}
	}
	inApp := func(user uuid.UUID, t model.NotificationType, title, message string) *model.SendNotificationRequest {
		return &model.SendNotificationRequest{
			UserID:   user,
			Type:     t,
			Channel:  model.ChannelInApp,
			Title:    title,
			Message:  message,
			Metadata: meta(),
		}
	}

	switch eventType {
	case model.EventAppointmentCreate:
		return []*model.SendNotificationRequest{
			inApp(p.DoctorID, model.NotifAppointmentConfirmation, "New appointment", "A patient booked one of your slots."),
		}
	case model.EventAppointmentCancel:
		var out []*model.SendNotificationRequest
		for _, user := range []uuid.UUID{p.PatientID, p.DoctorID} {
			if p.CancelledBy != nil && *p.CancelledBy == user {
				continue
			}
			out = append(out, inApp(user, model.NotifAppointmentCancelled, "Appointment cancelled", "An appointment was cancelled and the slot reopened."))
		}
		return out
	case model.EventAppointmentReschedule:
		return []*model.SendNotificationRequest{
			inApp(p.DoctorID, model.NotifSystemUpdate, "Appointment rescheduled", "A patient moved their appointment to a new slot."),
		}
	case model.EventPaymentComplete:
		return []*model.SendNotificationRequest{
			inApp(p.PatientID, model.NotifPaymentSuccess, "Payment received",
				fmt.Sprintf("We received your payment of %s %s.", p.Amount, p.Currency)),
		}
	case model.EventPrescriptionCreate:
		return []*model.SendNotificationRequest{
			inApp(p.PatientID, model.NotifPrescriptionReady, "New prescription",
				fmt.Sprintf("Your doctor prescribed %s.", p.MedicationName)),
		}
	}
	return nil
}
