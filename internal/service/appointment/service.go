package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

// ReminderChannel is the delivery channel used for scheduled reminders.
const ReminderChannel = model.ChannelEmail

var (
	ErrCannotCancel      = apperrors.NewBadRequest("appointment cannot be cancelled", nil)
	ErrCannotReschedule  = apperrors.NewBadRequest("appointment cannot be rescheduled", nil)
	ErrSlotStarted       = apperrors.NewBadRequest("selected slot has already started", nil)
	ErrOtherDoctorsSlot  = apperrors.NewBadRequest("new slot belongs to a different doctor", nil)
	ErrSameSlot          = apperrors.NewBadRequest("appointment is already in this slot", nil)
	ErrMustBeConfirmed   = apperrors.NewBadRequest("appointment must be confirmed to start", nil)
	ErrMustBeInProgress  = apperrors.NewBadRequest("appointment must be in progress to end", nil)
	ErrDoctorUnavailable = apperrors.NewBadRequest("doctor is not accepting consultations", nil)
)

func invalidTransition(from, to model.AppointmentStatus) error {
	return apperrors.NewBadRequest(fmt.Sprintf("invalid status transition from %s to %s", from, to), nil)
}

type AppointmentServicer interface {
	Book(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, actor model.Actor, filter *model.AppointmentFilter) ([]*model.Appointment, int, error)
	Upcoming(ctx context.Context, actor model.Actor) ([]*model.Appointment, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Appointment, error)
	Reschedule(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RescheduleRequest) (*model.Appointment, *model.AppointmentReschedule, error)
	Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error)
	End(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error)
	Reminders(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.AppointmentReminder, error)
}

type Service struct {
	appts   repository.AppointmentRepository
	slots   repository.SlotRepository
	doctors repository.DoctorRepository
	auditor audit.Auditor
	metrics *metrics.Metrics
	now     func() time.Time
}

var _ AppointmentServicer = (*Service)(nil)

func NewService(appts repository.AppointmentRepository, slots repository.SlotRepository,
	doctors repository.DoctorRepository, auditor audit.Auditor, m *metrics.Metrics) *Service {
	return &Service{
		appts:   appts,
		slots:   slots,
		doctors: doctors,
		auditor: auditor,
		metrics: m,
		now:     time.Now,
	}
}

// Book claims an open slot for the calling patient. The claim itself happens in the
// repository as a conditional update, so of two concurrent bookings only one wins and
// the other gets service.ErrSlotTaken.
func (s *Service) Book(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if !actor.IsPatient() {
		return nil, service.ErrNotPatient
	}
	slot, err := s.slots.Get(ctx, req.SlotID)
	if err != nil {
		return nil, service.Translate(err, "slot")
	}
	if slot.Status != model.SlotStatusOpen {
		s.metrics.BookingConflicts.Inc()
		return nil, service.ErrSlotTaken
	}
	now := s.now().UTC()
	if !slot.StartTime.After(now) {
		return nil, ErrSlotStarted
	}

	doc, err := s.doctors.GetByUserID(ctx, slot.DoctorID)
	if err != nil {
		return nil, service.Translate(err, "doctor")
	}
	if !doc.IsAvailableForConsultation {
		return nil, ErrDoctorUnavailable
	}

	apptType := req.AppointmentType
	if apptType == "" {
		apptType = model.AppointmentTypeVideo
	}
	appt := &model.Appointment{
		Base:            model.NewBase(),
		PatientID:       actor.UserID,
		DoctorID:        slot.DoctorID,
		SlotID:          slot.ID,
		AppointmentType: apptType,
		Status:          model.AppointmentStatusPending,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		MedicalHistory:  req.MedicalHistory,
		ConsultationFee: doc.ConsultationFee,
		PaymentStatus:   model.PaymentStatePending,
		ScheduledAt:     slot.StartTime,
	}

	reminders := PlanReminders(appt.ID, slot.StartTime, now, true)
	if err := s.appts.Book(ctx, appt, reminders); err != nil {
		if errors.Is(err, repository.ErrSlotUnavailable) {
			s.metrics.BookingConflicts.Inc()
		}
		return nil, service.Translate(err, "appointment")
	}

	s.metrics.AppointmentsByStatus.WithLabelValues(string(model.AppointmentStatusPending)).Inc()
	s.auditor.Log(ctx, audit.Action(actor.UserID, "book", model.AuditEntityAppointment, appt.ID,
		model.JSONMap{"slot_id": slot.ID.String(), "doctor_id": slot.DoctorID.String()}))
	return appt.Decorate(now), nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return appt.Decorate(s.now().UTC()), nil
}

// List scopes the query to the caller: patients see their own appointments, doctors
// the ones booked with them, admins everything.
func (s *Service) List(ctx context.Context, actor model.Actor, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	switch {
	case actor.IsPatient():
		filter.PatientID = &actor.UserID
	case actor.IsDoctor():
		filter.DoctorID = &actor.UserID
	case actor.IsAdmin():
	default:
		return nil, 0, service.ErrPermission
	}

	appts, total, err := s.appts.List(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "appointment")
	}
	now := s.now().UTC()
	for _, a := range appts {
		a.Decorate(now)
	}
	return appts, total, nil
}

func (s *Service) Upcoming(ctx context.Context, actor model.Actor) ([]*model.Appointment, error) {
	if actor.IsAdmin() {
		return []*model.Appointment{}, nil
	}
	appts, _, err := s.List(ctx, actor, &model.AppointmentFilter{
		UpcomingOnly: true,
		Ordering:     "scheduled_at",
		Pagination:   model.Pagination{Page: 1, PageSize: 100},
	})
	return appts, err
}

// Update applies a status change through the transition map plus the fields each
// side owns: notes and follow-up belong to the doctor, feedback to the patient.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	appt, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	isDoctor := actor.UserID == appt.DoctorID
	isPatient := actor.UserID == appt.PatientID

	if (req.DoctorNotes != nil || req.RequiresFollowUp != nil || req.FollowUpDate != nil) && !isDoctor {
		return nil, service.ErrPermission
	}
	if req.PatientFeedback != nil && !isPatient {
		return nil, service.ErrPermission
	}

	if req.Status != nil && *req.Status != appt.Status {
		to := *req.Status
		if !to.Valid() || !model.CanTransition(appt.Status, to) {
			return nil, invalidTransition(appt.Status, to)
		}
		switch to {
		case model.AppointmentStatusCancelled:
			if appt.Status != model.AppointmentStatusInProgress {
				return s.Cancel(ctx, actor, id, "")
			}
			// an interrupted visit has no cancellation window; only its doctor may abort it
			if !isDoctor && !actor.IsAdmin() {
				return nil, service.ErrPermission
			}
			return s.cancel(ctx, actor, appt, "")
		case model.AppointmentStatusInProgress:
			return s.Start(ctx, actor, id)
		case model.AppointmentStatusCompleted:
			return s.End(ctx, actor, id)
		case model.AppointmentStatusRefunded:
			if !actor.IsAdmin() {
				return nil, service.ErrNotAdmin
			}
		default:
			if !isDoctor && !actor.IsAdmin() {
				return nil, service.ErrPermission
			}
		}
		from := appt.Status
		appt.Status = to
		if err := s.applyFields(appt, req); err != nil {
			return nil, err
		}
		return s.save(ctx, actor, appt, from)
	}

	if err := s.applyFields(appt, req); err != nil {
		return nil, err
	}
	return s.save(ctx, actor, appt, appt.Status)
}

// Cancel is allowed for pending or confirmed appointments more than two hours out.
// The slot is reopened and pending reminders are dropped.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Appointment, error) {
	appt, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !appt.Cancellable(s.now().UTC()) {
		return nil, ErrCannotCancel
	}
	return s.cancel(ctx, actor, appt, reason)
}

func (s *Service) cancel(ctx context.Context, actor model.Actor, appt *model.Appointment, reason string) (*model.Appointment, error) {
	from := appt.Status
	appt.CancellationReason = reason
	appt.CancelledBy = &actor.UserID
	if err := s.appts.Cancel(ctx, appt, from); err != nil {
		return nil, service.Translate(err, "appointment")
	}

	s.metrics.AppointmentsByStatus.WithLabelValues(string(model.AppointmentStatusCancelled)).Inc()
	s.auditor.Log(ctx, audit.Action(actor.UserID, "cancel", model.AuditEntityAppointment, appt.ID,
		model.JSONMap{"from": string(from), "reason": reason}))
	return appt.Decorate(s.now().UTC()), nil
}

// Reschedule moves a pending or confirmed appointment, more than 24 hours out, to
// another open slot of the same doctor.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RescheduleRequest) (*model.Appointment, *model.AppointmentReschedule, error) {
	appt, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if !appt.IsParticipant(actor.UserID) {
		return nil, nil, service.ErrPermission
	}
	now := s.now().UTC()
	if !appt.Reschedulable(now) {
		return nil, nil, ErrCannotReschedule
	}
	if req.NewSlotID == appt.SlotID {
		return nil, nil, ErrSameSlot
	}

	slot, err := s.slots.Get(ctx, req.NewSlotID)
	if err != nil {
		return nil, nil, service.Translate(err, "slot")
	}
	if slot.DoctorID != appt.DoctorID {
		return nil, nil, ErrOtherDoctorsSlot
	}
	if slot.Status != model.SlotStatusOpen {
		s.metrics.BookingConflicts.Inc()
		return nil, nil, service.ErrSlotTaken
	}
	if !slot.StartTime.After(now) {
		return nil, nil, ErrSlotStarted
	}

	change := &model.AppointmentReschedule{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		OldSlotID:     appt.SlotID,
		NewSlotID:     slot.ID,
		Reason:        req.Reason,
		RequestedBy:   actor.UserID,
		CreatedAt:     now,
	}
	reminders := PlanReminders(appt.ID, slot.StartTime, now, false)
	if err := s.appts.Reschedule(ctx, appt, change, reminders); err != nil {
		if errors.Is(err, repository.ErrSlotUnavailable) {
			s.metrics.BookingConflicts.Inc()
		}
		return nil, nil, service.Translate(err, "appointment")
	}

	s.auditor.Log(ctx, audit.Action(actor.UserID, "reschedule", model.AuditEntityAppointment, appt.ID,
		model.JSONMap{"old_slot_id": change.OldSlotID.String(), "new_slot_id": change.NewSlotID.String()}))
	return appt.Decorate(now), change, nil
}

// Start moves a confirmed appointment to in_progress. Only its doctor may start it.
func (s *Service) Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusConfirmed {
		return nil, ErrMustBeConfirmed
	}

	now := s.now().UTC()
	appt.Status = model.AppointmentStatusInProgress
	appt.StartedAt = &now
	return s.save(ctx, actor, appt, model.AppointmentStatusConfirmed)
}

// End completes an in-progress appointment and records its length in whole minutes.
func (s *Service) End(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusInProgress {
		return nil, ErrMustBeInProgress
	}

	now := s.now().UTC()
	appt.Status = model.AppointmentStatusCompleted
	appt.EndedAt = &now
	if appt.StartedAt != nil {
		minutes := int(now.Sub(*appt.StartedAt) / time.Minute)
		appt.DurationMinutes = &minutes
	}
	out, err := s.save(ctx, actor, appt, model.AppointmentStatusInProgress)
	if err != nil {
		return nil, err
	}

	followUp := []*model.AppointmentReminder{newReminder(appt.ID, model.ReminderPostVisit, now)}
	if err := s.appts.AddReminders(ctx, followUp); err != nil {
		s.auditor.Log(ctx, audit.Action(actor.UserID, "reminder_failed", model.AuditEntityAppointment, appt.ID,
			model.JSONMap{"error": err.Error()}))
	}
	return out, nil
}

func (s *Service) Reminders(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.AppointmentReminder, error) {
	if _, err := s.visible(ctx, actor, id); err != nil {
		return nil, err
	}
	reminders, err := s.appts.ListReminders(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "reminder")
	}
	return reminders, nil
}

func (s *Service) applyFields(appt *model.Appointment, req *model.UpdateAppointmentRequest) error {
	if req.DoctorNotes != nil {
		appt.DoctorNotes = *req.DoctorNotes
	}
	if req.RequiresFollowUp != nil {
		appt.RequiresFollowUp = *req.RequiresFollowUp
	}
	if req.FollowUpDate != nil {
		if !req.FollowUpDate.After(appt.ScheduledAt) {
			return apperrors.NewBadRequest("follow_up_date must be after the appointment", nil)
		}
		appt.FollowUpDate = req.FollowUpDate
	}
	if req.PatientFeedback != nil {
		appt.PatientFeedback = *req.PatientFeedback
	}
	return nil
}

func (s *Service) save(ctx context.Context, actor model.Actor, appt *model.Appointment, from model.AppointmentStatus) (*model.Appointment, error) {
	if err := s.appts.Update(ctx, appt, from); err != nil {
		return nil, service.Translate(err, "appointment")
	}
	if appt.Status != from {
		s.metrics.AppointmentsByStatus.WithLabelValues(string(appt.Status)).Inc()
		s.auditor.Log(ctx, audit.Action(actor.UserID, transitionAction(appt.Status), model.AuditEntityAppointment, appt.ID,
			model.JSONMap{"from": string(from), "to": string(appt.Status)}))
	} else {
		s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityAppointment, appt.ID, nil))
	}
	return appt.Decorate(s.now().UTC()), nil
}

func transitionAction(to model.AppointmentStatus) string {
	switch to {
	case model.AppointmentStatusInProgress:
		return "start"
	case model.AppointmentStatusCompleted:
		return "end"
	default:
		return string(to)
	}
}

// visible loads an appointment the caller is a party to, or any appointment for admins.
func (s *Service) visible(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.appts.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "appointment")
	}
	if !actor.IsAdmin() && !appt.IsParticipant(actor.UserID) {
		return nil, service.ErrPermission
	}
	return appt, nil
}

func (s *Service) ownedByDoctor(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	appt, err := s.appts.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "appointment")
	}
	if appt.DoctorID != actor.UserID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return appt, nil
}

// PlanReminders returns the reminders for a visit at scheduledAt: an immediate
// booking confirmation when requested, then the pre-visit reminders that are
// still in the future.
func PlanReminders(appointmentID uuid.UUID, scheduledAt, now time.Time, withConfirmation bool) []*model.AppointmentReminder {
	var out []*model.AppointmentReminder
	if withConfirmation {
		out = append(out, newReminder(appointmentID, model.ReminderBookingConfirmation, now))
	}
	for _, kind := range []model.ReminderType{model.Reminder24Hour, model.Reminder1Hour, model.Reminder15Minute} {
		at := scheduledAt.Add(-model.ReminderOffsets[kind])
		if at.After(now) {
			out = append(out, newReminder(appointmentID, kind, at))
		}
	}
	return out
}

func newReminder(appointmentID uuid.UUID, kind model.ReminderType, at time.Time) *model.AppointmentReminder {
	return &model.AppointmentReminder{
		ID:             uuid.New(),
		AppointmentID:  appointmentID,
		ReminderType:   kind,
		Channel:        ReminderChannel,
		ScheduledFor:   at,
		DeliveryStatus: model.ReminderPending,
		CreatedAt:      time.Now().UTC(),
	}
}
