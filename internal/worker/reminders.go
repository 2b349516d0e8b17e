package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

// Notifier creates and delivers a notification outside of any request.
type Notifier interface {
	Notify(ctx context.Context, req *model.SendNotificationRequest) (*model.Notification, error)
}

// ReminderDispatcher turns due appointment reminders into patient notifications.
type ReminderDispatcher struct {
	appts     repository.AppointmentRepository
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	batchSize int
	now       func() time.Time
}

func NewReminderDispatcher(appts repository.AppointmentRepository, notifier Notifier, m *metrics.Metrics,
	logger zerolog.Logger, batchSize int) *ReminderDispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReminderDispatcher{
		appts:     appts,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (d *ReminderDispatcher) Run(ctx context.Context) (int, error) {
	due, err := d.appts.DueReminders(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		status := d.dispatch(ctx, r)

		var sentAt *time.Time
		if status == model.ReminderSent {
			now := d.now().UTC()
			sentAt = &now
			sent++
		}
		d.metrics.RemindersSent.WithLabelValues(string(r.ReminderType), string(status)).Inc()
		if err := d.appts.MarkReminder(ctx, r.ID, status, sentAt); err != nil {
			d.logger.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to mark reminder")
		}
	}
	return sent, nil
}

func (d *ReminderDispatcher) dispatch(ctx context.Context, r *model.AppointmentReminder) model.ReminderStatus {
	appt, err := d.appts.Get(ctx, r.AppointmentID)
	if err != nil {
		d.logger.Warn().Err(err).Str("reminder_id", r.ID.String()).Msg("reminder appointment not found")
		return model.ReminderFailed
	}
	if appt.Status == model.AppointmentStatusCancelled {
		return model.ReminderFailed
	}

	channel := r.Channel
	if channel == "" {
		channel = model.ChannelEmail
	}
	typ, title, message := reminderContent(r.ReminderType, appt)
	_, err = d.notifier.Notify(ctx, &model.SendNotificationRequest{
		UserID:  appt.PatientID,
		Type:    typ,
		Channel: channel,
		Title:   title,
		Message: message,
		Metadata: model.JSONMap{
			"appointment_id": appt.ID.String(),
			"reminder_type":  string(r.ReminderType),
		},
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to send reminder")
		return model.ReminderFailed
	}
	return model.ReminderSent
}

func reminderContent(t model.ReminderType, appt *model.Appointment) (model.NotificationType, string, string) {
	when := appt.ScheduledAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	switch t {
	case model.ReminderBookingConfirmation:
		return model.NotifAppointmentConfirmation, "Appointment booked",
			fmt.Sprintf("Your appointment is booked for %s.", when)
	case model.ReminderPostVisit:
		return model.NotifAppointmentReminder, "How was your visit?",
			"Your consultation has ended. Share your feedback and review your doctor."
	default:
		return model.NotifAppointmentReminder, "Upcoming appointment",
			fmt.Sprintf("Reminder: your appointment starts at %s.", when)
	}
}
