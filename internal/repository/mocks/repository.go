// Package mocks holds testify mocks of the repository interfaces for service and handler tests.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type UserRepository struct {
	mock.Mock
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (m *UserRepository) Create(ctx context.Context, user *model.User, profile *model.UserProfile) error {
	args := m.Called(ctx, user, profile)
	return args.Error(0)
}

func (m *UserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.User)
	return r0, args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	r0, _ := args.Get(0).(*model.User)
	return r0, args.Error(1)
}

func (m *UserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepository) RecordLogin(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time, lastLogin *time.Time) error {
	args := m.Called(ctx, id, attempts, lockedUntil, lastLogin)
	return args.Error(0)
}

func (m *UserRepository) List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.User)
	return r0, args.Int(1), args.Error(2)
}

func (m *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	args := m.Called(ctx, userID)
	r0, _ := args.Get(0).(*model.UserProfile)
	return r0, args.Error(1)
}

func (m *UserRepository) UpdateProfile(ctx context.Context, profile *model.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *UserRepository) SetPhoneVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}

func (m *UserRepository) SetIdentityVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}

type DoctorRepository struct {
	mock.Mock
}

var _ repository.DoctorRepository = (*DoctorRepository)(nil)

func (m *DoctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	args := m.Called(ctx, doctor)
	return args.Error(0)
}

func (m *DoctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Doctor)
	return r0, args.Error(1)
}

func (m *DoctorRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Doctor, error) {
	args := m.Called(ctx, userID)
	r0, _ := args.Get(0).(*model.Doctor)
	return r0, args.Error(1)
}

func (m *DoctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	args := m.Called(ctx, doctor)
	return args.Error(0)
}

func (m *DoctorRepository) SetKYCStatus(ctx context.Context, id uuid.UUID, status model.KYCStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *DoctorRepository) ListDirectory(ctx context.Context, filter *model.DoctorFilter) ([]*model.Doctor, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.Doctor)
	return r0, args.Int(1), args.Error(2)
}

func (m *DoctorRepository) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorAvailability, error) {
	args := m.Called(ctx, doctorID)
	r0, _ := args.Get(0).([]*model.DoctorAvailability)
	return r0, args.Error(1)
}

func (m *DoctorRepository) GetAvailability(ctx context.Context, id uuid.UUID) (*model.DoctorAvailability, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.DoctorAvailability)
	return r0, args.Error(1)
}

func (m *DoctorRepository) CreateAvailability(ctx context.Context, a *model.DoctorAvailability) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *DoctorRepository) UpdateAvailability(ctx context.Context, a *model.DoctorAvailability) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *DoctorRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DoctorRepository) CreateReview(ctx context.Context, review *model.DoctorReview) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *DoctorRepository) ListReviews(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.DoctorReview, int, error) {
	args := m.Called(ctx, doctorID, p)
	r0, _ := args.Get(0).([]*model.DoctorReview)
	return r0, args.Int(1), args.Error(2)
}

type SlotRepository struct {
	mock.Mock
}

var _ repository.SlotRepository = (*SlotRepository)(nil)

func (m *SlotRepository) Create(ctx context.Context, slot *model.ScheduleSlot) error {
	args := m.Called(ctx, slot)
	return args.Error(0)
}

func (m *SlotRepository) CreateBatch(ctx context.Context, slots []*model.ScheduleSlot) (int, error) {
	args := m.Called(ctx, slots)
	return args.Int(0), args.Error(1)
}

func (m *SlotRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleSlot, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.ScheduleSlot)
	return r0, args.Error(1)
}

func (m *SlotRepository) List(ctx context.Context, filter *model.SlotFilter) ([]*model.ScheduleSlot, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.ScheduleSlot)
	return r0, args.Int(1), args.Error(2)
}

func (m *SlotRepository) SetStatus(ctx context.Context, id uuid.UUID, from model.SlotStatus, to model.SlotStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *SlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type AppointmentRepository struct {
	mock.Mock
}

var _ repository.AppointmentRepository = (*AppointmentRepository)(nil)

func (m *AppointmentRepository) Book(ctx context.Context, appt *model.Appointment, reminders []*model.AppointmentReminder) error {
	args := m.Called(ctx, appt, reminders)
	return args.Error(0)
}

func (m *AppointmentRepository) Cancel(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	args := m.Called(ctx, appt, from)
	return args.Error(0)
}

func (m *AppointmentRepository) Reschedule(ctx context.Context, appt *model.Appointment, change *model.AppointmentReschedule, reminders []*model.AppointmentReminder) error {
	args := m.Called(ctx, appt, change, reminders)
	return args.Error(0)
}

func (m *AppointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Appointment)
	return r0, args.Error(1)
}

func (m *AppointmentRepository) Update(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	args := m.Called(ctx, appt, from)
	return args.Error(0)
}

func (m *AppointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.Appointment)
	return r0, args.Int(1), args.Error(2)
}

func (m *AppointmentRepository) HasCompleted(ctx context.Context, patientID uuid.UUID, doctorUserID uuid.UUID, appointmentID uuid.UUID) (bool, error) {
	args := m.Called(ctx, patientID, doctorUserID, appointmentID)
	return args.Bool(0), args.Error(1)
}

func (m *AppointmentRepository) AddReminders(ctx context.Context, reminders []*model.AppointmentReminder) error {
	args := m.Called(ctx, reminders)
	return args.Error(0)
}

func (m *AppointmentRepository) ListReminders(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error) {
	args := m.Called(ctx, appointmentID)
	r0, _ := args.Get(0).([]*model.AppointmentReminder)
	return r0, args.Error(1)
}

func (m *AppointmentRepository) DueReminders(ctx context.Context, now time.Time, limit int) ([]*model.AppointmentReminder, error) {
	args := m.Called(ctx, now, limit)
	r0, _ := args.Get(0).([]*model.AppointmentReminder)
	return r0, args.Error(1)
}

func (m *AppointmentRepository) MarkReminder(ctx context.Context, id uuid.UUID, status model.ReminderStatus, sentAt *time.Time) error {
	args := m.Called(ctx, id, status, sentAt)
	return args.Error(0)
}

type EMRRepository struct {
	mock.Mock
}

var _ repository.EMRRepository = (*EMRRepository)(nil)

func (m *EMRRepository) CreateRecord(ctx context.Context, rec *model.MedicalRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *EMRRepository) GetRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.MedicalRecord)
	return r0, args.Error(1)
}

func (m *EMRRepository) UpdateRecord(ctx context.Context, rec *model.MedicalRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *EMRRepository) ListRecords(ctx context.Context, scope *model.EMRScope) ([]*model.MedicalRecord, int, error) {
	args := m.Called(ctx, scope)
	r0, _ := args.Get(0).([]*model.MedicalRecord)
	return r0, args.Int(1), args.Error(2)
}

func (m *EMRRepository) CreatePrescription(ctx context.Context, p *model.Prescription) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *EMRRepository) GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Prescription)
	return r0, args.Error(1)
}

func (m *EMRRepository) UpdatePrescription(ctx context.Context, p *model.Prescription) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *EMRRepository) ListPrescriptions(ctx context.Context, scope *model.EMRScope) ([]*model.Prescription, int, error) {
	args := m.Called(ctx, scope)
	r0, _ := args.Get(0).([]*model.Prescription)
	return r0, args.Int(1), args.Error(2)
}

func (m *EMRRepository) UseRefill(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Prescription)
	return r0, args.Error(1)
}

func (m *EMRRepository) CreateLabResult(ctx context.Context, l *model.LabResult) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *EMRRepository) GetLabResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.LabResult)
	return r0, args.Error(1)
}

func (m *EMRRepository) UpdateLabResult(ctx context.Context, l *model.LabResult) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *EMRRepository) ListLabResults(ctx context.Context, scope *model.EMRScope) ([]*model.LabResult, int, error) {
	args := m.Called(ctx, scope)
	r0, _ := args.Get(0).([]*model.LabResult)
	return r0, args.Int(1), args.Error(2)
}

func (m *EMRRepository) CreateVitalSign(ctx context.Context, v *model.VitalSign) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *EMRRepository) ListVitalSigns(ctx context.Context, scope *model.EMRScope) ([]*model.VitalSign, int, error) {
	args := m.Called(ctx, scope)
	r0, _ := args.Get(0).([]*model.VitalSign)
	return r0, args.Int(1), args.Error(2)
}

func (m *EMRRepository) CreateAllergy(ctx context.Context, a *model.Allergy) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *EMRRepository) GetAllergy(ctx context.Context, id uuid.UUID) (*model.Allergy, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Allergy)
	return r0, args.Error(1)
}

func (m *EMRRepository) UpdateAllergy(ctx context.Context, a *model.Allergy) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *EMRRepository) ListAllergies(ctx context.Context, scope *model.EMRScope) ([]*model.Allergy, int, error) {
	args := m.Called(ctx, scope)
	r0, _ := args.Get(0).([]*model.Allergy)
	return r0, args.Int(1), args.Error(2)
}

func (m *EMRRepository) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*model.DoctorEMRStats, error) {
	args := m.Called(ctx, doctorID)
	r0, _ := args.Get(0).(*model.DoctorEMRStats)
	return r0, args.Error(1)
}

type PaymentRepository struct {
	mock.Mock
}

var _ repository.PaymentRepository = (*PaymentRepository)(nil)

func (m *PaymentRepository) CreateTransaction(ctx context.Context, txn *model.PaymentTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *PaymentRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.PaymentTransaction)
	return r0, args.Error(1)
}

func (m *PaymentRepository) ActiveForAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, appointmentID)
	r0, _ := args.Get(0).(*model.PaymentTransaction)
	return r0, args.Error(1)
}

func (m *PaymentRepository) ListTransactions(ctx context.Context, filter *model.TransactionFilter) ([]*model.PaymentTransaction, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.PaymentTransaction)
	return r0, args.Int(1), args.Error(2)
}

func (m *PaymentRepository) SetTransactionStatus(ctx context.Context, txn *model.PaymentTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *PaymentRepository) ReserveRefund(ctx context.Context, refund *model.Refund) (bool, error) {
	args := m.Called(ctx, refund)
	return args.Bool(0), args.Error(1)
}

func (m *PaymentRepository) CompleteRefund(ctx context.Context, refund *model.Refund, txn *model.PaymentTransaction, full bool) error {
	args := m.Called(ctx, refund, txn, full)
	return args.Error(0)
}

func (m *PaymentRepository) FailRefund(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *PaymentRepository) ListRefunds(ctx context.Context, p model.Pagination) ([]*model.Refund, int, error) {
	args := m.Called(ctx, p)
	r0, _ := args.Get(0).([]*model.Refund)
	return r0, args.Int(1), args.Error(2)
}

func (m *PaymentRepository) PayableAppointments(ctx context.Context, doctorID uuid.UUID, start time.Time, end time.Time) ([]*model.Appointment, error) {
	args := m.Called(ctx, doctorID, start, end)
	r0, _ := args.Get(0).([]*model.Appointment)
	return r0, args.Error(1)
}

func (m *PaymentRepository) CreatePayout(ctx context.Context, payout *model.DoctorPayout, appointmentIDs []uuid.UUID) error {
	args := m.Called(ctx, payout, appointmentIDs)
	return args.Error(0)
}

func (m *PaymentRepository) GetPayout(ctx context.Context, id uuid.UUID) (*model.DoctorPayout, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.DoctorPayout)
	return r0, args.Error(1)
}

func (m *PaymentRepository) ListPayouts(ctx context.Context, filter *model.PayoutFilter) ([]*model.DoctorPayout, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.DoctorPayout)
	return r0, args.Int(1), args.Error(2)
}

func (m *PaymentRepository) UpdatePayout(ctx context.Context, payout *model.DoctorPayout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func (m *PaymentRepository) Earnings(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, int, decimal.Decimal, error) {
	args := m.Called(ctx, doctorID)
	r0, _ := args.Get(0).(decimal.Decimal)
	r2, _ := args.Get(2).(decimal.Decimal)
	return r0, args.Int(1), r2, args.Error(3)
}

type NotificationRepository struct {
	mock.Mock
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func (m *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	args := m.Called(ctx, id)
	r0, _ := args.Get(0).(*model.Notification)
	return r0, args.Error(1)
}

func (m *NotificationRepository) List(ctx context.Context, filter *model.NotificationFilter) ([]*model.Notification, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.Notification)
	return r0, args.Int(1), args.Error(2)
}

func (m *NotificationRepository) UpdateDelivery(ctx context.Context, n *model.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	r0, _ := args.Get(0).(int64)
	return r0, args.Error(1)
}

func (m *NotificationRepository) Stats(ctx context.Context, userID *uuid.UUID) (*model.NotificationStats, error) {
	args := m.Called(ctx, userID)
	r0, _ := args.Get(0).(*model.NotificationStats)
	return r0, args.Error(1)
}

func (m *NotificationRepository) DueRetries(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	args := m.Called(ctx, now, limit)
	r0, _ := args.Get(0).([]*model.Notification)
	return r0, args.Error(1)
}

type RTCRepository struct {
	mock.Mock
}

var _ repository.RTCRepository = (*RTCRepository)(nil)

func (m *RTCRepository) CreateRoom(ctx context.Context, room *model.RTCRoom) (*model.RTCRoom, error) {
	args := m.Called(ctx, room)
	r0, _ := args.Get(0).(*model.RTCRoom)
	return r0, args.Error(1)
}

func (m *RTCRepository) GetRoom(ctx context.Context, roomID string) (*model.RTCRoom, error) {
	args := m.Called(ctx, roomID)
	r0, _ := args.Get(0).(*model.RTCRoom)
	return r0, args.Error(1)
}

func (m *RTCRepository) GetRoomByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.RTCRoom, error) {
	args := m.Called(ctx, appointmentID)
	r0, _ := args.Get(0).(*model.RTCRoom)
	return r0, args.Error(1)
}

func (m *RTCRepository) ListRooms(ctx context.Context, userID *uuid.UUID, p model.Pagination) ([]*model.RTCRoom, int, error) {
	args := m.Called(ctx, userID, p)
	r0, _ := args.Get(0).([]*model.RTCRoom)
	return r0, args.Int(1), args.Error(2)
}

func (m *RTCRepository) UpdateRoom(ctx context.Context, room *model.RTCRoom, from ...model.RoomStatus) error {
	args := m.Called(ctx, room, from)
	return args.Error(0)
}

func (m *RTCRepository) ExpireRooms(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	r0, _ := args.Get(0).(int64)
	return r0, args.Error(1)
}

func (m *RTCRepository) CreateSignal(ctx context.Context, s *model.RTCSignal) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *RTCRepository) ListSignals(ctx context.Context, roomPK uuid.UUID, limit int) ([]*model.RTCSignal, error) {
	args := m.Called(ctx, roomPK, limit)
	r0, _ := args.Get(0).([]*model.RTCSignal)
	return r0, args.Error(1)
}

func (m *RTCRepository) CreateJoinToken(ctx context.Context, t *model.RTCJoinToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *RTCRepository) ListJoinTokens(ctx context.Context, userID uuid.UUID, limit int) ([]*model.RTCJoinToken, error) {
	args := m.Called(ctx, userID, limit)
	r0, _ := args.Get(0).([]*model.RTCJoinToken)
	return r0, args.Error(1)
}

type AuditRepository struct {
	mock.Mock
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (m *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepository) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	args := m.Called(ctx, filter)
	r0, _ := args.Get(0).([]*model.AuditLog)
	return r0, args.Int(1), args.Error(2)
}

func (m *AuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	r0, _ := args.Get(0).(int64)
	return r0, args.Error(1)
}

type OutboxRepository struct {
	mock.Mock
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (m *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	r0, _ := args.Get(0).([]*model.OutboxEvent)
	return r0, args.Error(1)
}

func (m *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryCount int) error {
	args := m.Called(ctx, id, status, errMsg, retryCount)
	return args.Error(0)
}

func (m *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	r0, _ := args.Get(0).(int64)
	return r0, args.Error(1)
}
