package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrSlotUnavailable means the slot was not open when the claim ran.
	ErrSlotUnavailable = errors.New("slot is not available")
	// ErrStaleState means the row changed status since it was read.
	ErrStaleState = errors.New("record changed concurrently")
	ErrDuplicate  = errors.New("record already exists")
	// ErrInUse means other rows still reference the record.
	ErrInUse = errors.New("record is still referenced")
	// ErrOverLimit means an amount exceeds what the record still allows.
	ErrOverLimit = errors.New("amount exceeds the remaining balance")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User, profile *model.UserProfile) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		RecordLogin(ctx context.Context, id uuid.UUID, attempts int, lockedUntil, lastLogin *time.Time) error
		List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error)
		GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error)
		UpdateProfile(ctx context.Context, profile *model.UserProfile) error
		SetPhoneVerified(ctx context.Context, id uuid.UUID, verified bool) error
		SetIdentityVerified(ctx context.Context, id uuid.UUID, verified bool) error
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
		SetKYCStatus(ctx context.Context, id uuid.UUID, status model.KYCStatus) error
		ListDirectory(ctx context.Context, filter *model.DoctorFilter) ([]*model.Doctor, int, error)

		ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorAvailability, error)
		GetAvailability(ctx context.Context, id uuid.UUID) (*model.DoctorAvailability, error)
		CreateAvailability(ctx context.Context, a *model.DoctorAvailability) error
		UpdateAvailability(ctx context.Context, a *model.DoctorAvailability) error
		DeleteAvailability(ctx context.Context, id uuid.UUID) error

		// CreateReview inserts the review and recomputes the doctor's rating in one transaction.
		CreateReview(ctx context.Context, review *model.DoctorReview) error
		ListReviews(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.DoctorReview, int, error)
	}

	SlotRepository interface {
		Create(ctx context.Context, slot *model.ScheduleSlot) error
		// CreateBatch inserts slots, skipping starts the doctor already has. Returns the inserted count.
		CreateBatch(ctx context.Context, slots []*model.ScheduleSlot) (int, error)
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduleSlot, error)
		List(ctx context.Context, filter *model.SlotFilter) ([]*model.ScheduleSlot, int, error)
		// SetStatus moves a slot from one status to another, ErrStaleState if it was not in from.
		SetStatus(ctx context.Context, id uuid.UUID, from, to model.SlotStatus) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		// Book claims the slot and inserts the appointment and its reminders atomically.
		// ErrSlotUnavailable when the slot is no longer open.
		Book(ctx context.Context, appt *model.Appointment, reminders []*model.AppointmentReminder) error
		// Cancel marks the appointment cancelled, reopens its slot and drops pending reminders.
		Cancel(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error
		// Reschedule claims newSlot, reopens the old slot, moves the appointment and records the change.
		Reschedule(ctx context.Context, appt *model.Appointment, change *model.AppointmentReschedule, reminders []*model.AppointmentReminder) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// Update writes the mutable columns if the row is still in status from.
		Update(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, int, error)
		HasCompleted(ctx context.Context, patientID, doctorUserID, appointmentID uuid.UUID) (bool, error)

		AddReminders(ctx context.Context, reminders []*model.AppointmentReminder) error
		ListReminders(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error)
		DueReminders(ctx context.Context, now time.Time, limit int) ([]*model.AppointmentReminder, error)
		MarkReminder(ctx context.Context, id uuid.UUID, status model.ReminderStatus, sentAt *time.Time) error
	}

	EMRRepository interface {
		CreateRecord(ctx context.Context, rec *model.MedicalRecord) error
		GetRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		UpdateRecord(ctx context.Context, rec *model.MedicalRecord) error
		ListRecords(ctx context.Context, scope *model.EMRScope) ([]*model.MedicalRecord, int, error)

		CreatePrescription(ctx context.Context, p *model.Prescription) error
		GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		UpdatePrescription(ctx context.Context, p *model.Prescription) error
		ListPrescriptions(ctx context.Context, scope *model.EMRScope) ([]*model.Prescription, int, error)
		// UseRefill increments refills_used while it is below refills_allowed.
		UseRefill(ctx context.Context, id uuid.UUID) (*model.Prescription, error)

		CreateLabResult(ctx context.Context, l *model.LabResult) error
		GetLabResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error)
		UpdateLabResult(ctx context.Context, l *model.LabResult) error
		ListLabResults(ctx context.Context, scope *model.EMRScope) ([]*model.LabResult, int, error)

		CreateVitalSign(ctx context.Context, v *model.VitalSign) error
		ListVitalSigns(ctx context.Context, scope *model.EMRScope) ([]*model.VitalSign, int, error)

		CreateAllergy(ctx context.Context, a *model.Allergy) error
		GetAllergy(ctx context.Context, id uuid.UUID) (*model.Allergy, error)
		UpdateAllergy(ctx context.Context, a *model.Allergy) error
		ListAllergies(ctx context.Context, scope *model.EMRScope) ([]*model.Allergy, int, error)

		DoctorStats(ctx context.Context, doctorID uuid.UUID) (*model.DoctorEMRStats, error)
	}

	PaymentRepository interface {
		CreateTransaction(ctx context.Context, txn *model.PaymentTransaction) error
		GetTransaction(ctx context.Context, id uuid.UUID) (*model.PaymentTransaction, error)
		// ActiveForAppointment returns the newest pending, processing or completed transaction.
		ActiveForAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.PaymentTransaction, error)
		ListTransactions(ctx context.Context, filter *model.TransactionFilter) ([]*model.PaymentTransaction, int, error)
		// SetTransactionStatus updates the transaction and mirrors the result on the appointment.
		SetTransactionStatus(ctx context.Context, txn *model.PaymentTransaction) error

		// ReserveRefund records the refund as processing under a row lock on the
		// transaction. It returns ErrOverLimit when the amount exceeds what is left and
		// reports whether the refund covers the whole remainder.
		ReserveRefund(ctx context.Context, refund *model.Refund) (bool, error)
		// CompleteRefund settles a reserved refund. A full refund also marks the
		// transaction and appointment refunded in the same transaction.
		CompleteRefund(ctx context.Context, refund *model.Refund, txn *model.PaymentTransaction, full bool) error
		FailRefund(ctx context.Context, id uuid.UUID) error
		ListRefunds(ctx context.Context, p model.Pagination) ([]*model.Refund, int, error)

		PayableAppointments(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error)
		// CreatePayout inserts the payout and links the appointments to it.
		CreatePayout(ctx context.Context, payout *model.DoctorPayout, appointmentIDs []uuid.UUID) error
		GetPayout(ctx context.Context, id uuid.UUID) (*model.DoctorPayout, error)
		ListPayouts(ctx context.Context, filter *model.PayoutFilter) ([]*model.DoctorPayout, int, error)
		UpdatePayout(ctx context.Context, payout *model.DoctorPayout) error
		// Earnings returns total fees and count of completed, paid appointments, plus fees not yet paid out.
		Earnings(ctx context.Context, doctorID uuid.UUID) (total decimal.Decimal, count int, unpaid decimal.Decimal, err error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, filter *model.NotificationFilter) ([]*model.Notification, int, error)
		UpdateDelivery(ctx context.Context, n *model.Notification) error
		MarkRead(ctx context.Context, id, userID uuid.UUID) error
		MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
		// Stats aggregates one user's notifications, or all of them when userID is nil.
		Stats(ctx context.Context, userID *uuid.UUID) (*model.NotificationStats, error)
		DueRetries(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
	}

	RTCRepository interface {
		// CreateRoom inserts the room unless the appointment already has one, and returns
		// whichever room is stored.
		CreateRoom(ctx context.Context, room *model.RTCRoom) (*model.RTCRoom, error)
		GetRoom(ctx context.Context, roomID string) (*model.RTCRoom, error)
		GetRoomByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.RTCRoom, error)
		ListRooms(ctx context.Context, userID *uuid.UUID, p model.Pagination) ([]*model.RTCRoom, int, error)
		// UpdateRoom writes status and timestamps if the room is still in one of from.
		UpdateRoom(ctx context.Context, room *model.RTCRoom, from ...model.RoomStatus) error
		ExpireRooms(ctx context.Context, now time.Time) (int64, error)

		CreateSignal(ctx context.Context, s *model.RTCSignal) error
		ListSignals(ctx context.Context, roomPK uuid.UUID, limit int) ([]*model.RTCSignal, error)

		CreateJoinToken(ctx context.Context, t *model.RTCJoinToken) error
		ListJoinTokens(ctx context.Context, userID uuid.UUID, limit int) ([]*model.RTCJoinToken, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error)
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending locks up to limit pending events and marks them processing.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryCount int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
