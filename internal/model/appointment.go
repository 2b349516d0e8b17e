package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "pending"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
	AppointmentStatusRefunded   AppointmentStatus = "refunded"
)

// appointmentTransitions lists every allowed move. Anything else is rejected.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:    {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed:  {AppointmentStatusInProgress, AppointmentStatusCancelled, AppointmentStatusNoShow},
	AppointmentStatusInProgress: {AppointmentStatusCompleted, AppointmentStatusCancelled},
	AppointmentStatusCompleted:  {AppointmentStatusRefunded},
	AppointmentStatusCancelled:  {AppointmentStatusRefunded},
	AppointmentStatusNoShow:     {AppointmentStatusRefunded},
}

// CanTransition reports whether from -> to is in the transition map.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow,
		AppointmentStatusRefunded:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeVideo    AppointmentType = "video"
	AppointmentTypeInPerson AppointmentType = "in_person"
)

type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStateRefunded  PaymentState = "refunded"
)

const (
	CancelWindow     = 2 * time.Hour
	RescheduleWindow = 24 * time.Hour
)

// Appointment binds a patient to a doctor's slot. PatientID and DoctorID are user ids.
type Appointment struct {
	Base
	PatientID          uuid.UUID         `json:"patient_id" db:"patient_id"`
	DoctorID           uuid.UUID         `json:"doctor_id" db:"doctor_id"`
	SlotID             uuid.UUID         `json:"slot_id" db:"slot_id"`
	AppointmentType    AppointmentType   `json:"appointment_type" db:"appointment_type"`
	Status             AppointmentStatus `json:"status" db:"status"`
	Reason             string            `json:"reason" db:"reason"`
	Symptoms           string            `json:"symptoms" db:"symptoms"`
	MedicalHistory     string            `json:"medical_history" db:"medical_history"`
	VideoRoomID        *string           `json:"video_room_id,omitempty" db:"video_room_id"`
	ConsultationFee    decimal.Decimal   `json:"consultation_fee" db:"consultation_fee"`
	PaymentStatus      PaymentState      `json:"payment_status" db:"payment_status"`
	PaymentID          *string           `json:"payment_id,omitempty" db:"payment_id"`
	ScheduledAt        time.Time         `json:"scheduled_at" db:"scheduled_at"`
	StartedAt          *time.Time        `json:"started_at,omitempty" db:"started_at"`
	EndedAt            *time.Time        `json:"ended_at,omitempty" db:"ended_at"`
	DurationMinutes    *int              `json:"duration_minutes,omitempty" db:"duration_minutes"`
	DoctorNotes        string            `json:"doctor_notes" db:"doctor_notes"`
	PatientFeedback    string            `json:"patient_feedback" db:"patient_feedback"`
	RequiresFollowUp   bool              `json:"requires_follow_up" db:"requires_follow_up"`
	FollowUpDate       *time.Time        `json:"follow_up_date,omitempty" db:"follow_up_date"`
	CancellationReason string            `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	PayoutID           *uuid.UUID        `json:"payout_id,omitempty" db:"payout_id"`

	IsUpcoming       bool `json:"is_upcoming" db:"-"`
	CanBeCancelled   bool `json:"can_be_cancelled" db:"-"`
	CanBeRescheduled bool `json:"can_be_rescheduled" db:"-"`
}

// Cancellable reports whether the appointment may still be cancelled at now.
func (a *Appointment) Cancellable(now time.Time) bool {
	if a.Status != AppointmentStatusPending && a.Status != AppointmentStatusConfirmed {
		return false
	}
	return a.ScheduledAt.Sub(now) > CancelWindow
}

// Reschedulable reports whether the appointment may still be moved at now.
func (a *Appointment) Reschedulable(now time.Time) bool {
	if a.Status != AppointmentStatusPending && a.Status != AppointmentStatusConfirmed {
		return false
	}
	return a.ScheduledAt.Sub(now) > RescheduleWindow
}

// Decorate fills the computed flags.
func (a *Appointment) Decorate(now time.Time) *Appointment {
	a.IsUpcoming = a.ScheduledAt.After(now) &&
		(a.Status == AppointmentStatusPending || a.Status == AppointmentStatusConfirmed)
	a.CanBeCancelled = a.Cancellable(now)
	a.CanBeRescheduled = a.Reschedulable(now)
	return a
}

// IsParticipant reports whether userID is the patient or the doctor.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return userID == a.PatientID || userID == a.DoctorID
}

type AppointmentReschedule struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AppointmentID uuid.UUID `json:"appointment_id" db:"appointment_id"`
	OldSlotID     uuid.UUID `json:"old_slot_id" db:"old_slot_id"`
	NewSlotID     uuid.UUID `json:"new_slot_id" db:"new_slot_id"`
	Reason        string    `json:"reason" db:"reason"`
	RequestedBy   uuid.UUID `json:"requested_by" db:"requested_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type ReminderType string

const (
	ReminderBookingConfirmation ReminderType = "booking_confirmation"
	Reminder24Hour              ReminderType = "24_hour"
	Reminder1Hour               ReminderType = "1_hour"
	Reminder15Minute            ReminderType = "15_minute"
	ReminderPostVisit           ReminderType = "post_visit"
)

// ReminderOffsets are the lead times of the pre-visit reminders.
var ReminderOffsets = map[ReminderType]time.Duration{
	Reminder24Hour:   24 * time.Hour,
	Reminder1Hour:    time.Hour,
	Reminder15Minute: 15 * time.Minute,
}

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

type AppointmentReminder struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	AppointmentID  uuid.UUID      `json:"appointment_id" db:"appointment_id"`
	ReminderType   ReminderType   `json:"reminder_type" db:"reminder_type"`
	Channel        string         `json:"channel" db:"channel"`
	ScheduledFor   time.Time      `json:"scheduled_for" db:"scheduled_for"`
	SentAt         *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	DeliveryStatus ReminderStatus `json:"delivery_status" db:"delivery_status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

type AppointmentFilter struct {
	PatientID       *uuid.UUID
	DoctorID        *uuid.UUID
	Status          AppointmentStatus
	AppointmentType AppointmentType
	From            *time.Time
	To              *time.Time
	UpcomingOnly    bool
	// Ordering accepts scheduled_at, -scheduled_at, created_at, -created_at.
	Ordering string
	Pagination
}

type CreateAppointmentRequest struct {
	SlotID          uuid.UUID       `json:"slot_id" binding:"required"`
	AppointmentType AppointmentType `json:"appointment_type" binding:"omitempty,oneof=video in_person"`
	Reason          string          `json:"reason" binding:"required,max=1000"`
	Symptoms        string          `json:"symptoms" binding:"max=2000"`
	MedicalHistory  string          `json:"medical_history" binding:"max=4000"`
}

type UpdateAppointmentRequest struct {
	Status           *AppointmentStatus `json:"status"`
	DoctorNotes      *string            `json:"doctor_notes"`
	PatientFeedback  *string            `json:"patient_feedback"`
	RequiresFollowUp *bool              `json:"requires_follow_up"`
	FollowUpDate     *time.Time         `json:"follow_up_date"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type RescheduleRequest struct {
	NewSlotID uuid.UUID `json:"new_slot_id" binding:"required"`
	Reason    string    `json:"reason" binding:"max=500"`
}
