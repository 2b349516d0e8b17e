package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentProvider string

const (
	ProviderStripe   PaymentProvider = "stripe"
	ProviderRazorpay PaymentProvider = "razorpay"
	ProviderManual   PaymentProvider = "manual"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "pending"
	TxnProcessing TransactionStatus = "processing"
	TxnCompleted  TransactionStatus = "completed"
	TxnFailed     TransactionStatus = "failed"
	TxnCancelled  TransactionStatus = "cancelled"
	TxnRefunded   TransactionStatus = "refunded"
)

// Reusable reports whether an existing transaction should be returned instead of
// opening a new intent.
func (s TransactionStatus) Reusable() bool {
	return s == TxnPending || s == TxnProcessing || s == TxnCompleted
}

const DefaultCurrency = "USD"

type PaymentTransaction struct {
	Base
	AppointmentID uuid.UUID         `json:"appointment_id" db:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id" db:"patient_id"`
	Provider      PaymentProvider   `json:"provider" db:"provider"`
	ExternalID    string            `json:"external_id" db:"external_id"`
	ClientSecret  string            `json:"client_secret,omitempty" db:"client_secret"`
	Amount        decimal.Decimal   `json:"amount" db:"amount"`
	Currency      string            `json:"currency" db:"currency"`
	Status        TransactionStatus `json:"status" db:"status"`
	Description   string            `json:"description" db:"description"`
	Metadata      JSONMap           `json:"metadata" db:"metadata"`
	FailureReason string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

type Refund struct {
	Base
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Reason        string          `json:"reason" db:"reason"`
	Status        RefundStatus    `json:"status" db:"status"`
	ExternalID    string          `json:"external_id" db:"external_id"`
	ProcessedBy   uuid.UUID       `json:"processed_by" db:"processed_by"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// DoctorShare is the fraction of consultation fees paid out to the doctor.
var DoctorShare = decimal.NewFromFloat(0.80)

type DoctorPayout struct {
	Base
	DoctorID         uuid.UUID       `json:"doctor_id" db:"doctor_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	GrossAmount      decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	Currency         string          `json:"currency" db:"currency"`
	Status           PayoutStatus    `json:"status" db:"status"`
	PeriodStart      time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time       `json:"period_end" db:"period_end"`
	AppointmentCount int             `json:"appointment_count" db:"appointment_count"`
	ExternalID       string          `json:"external_id,omitempty" db:"external_id"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	Notes            string          `json:"notes" db:"notes"`
}

type TransactionFilter struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	Status        TransactionStatus
	Pagination
}

type PayoutFilter struct {
	DoctorID *uuid.UUID
	Status   PayoutStatus
	Pagination
}

type PaymentIntentRequest struct {
	AppointmentID uuid.UUID       `json:"appointment_id" binding:"required"`
	Provider      PaymentProvider `json:"provider" binding:"omitempty,oneof=razorpay manual"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" binding:"required,max=500"`
}

type TransactionStatusRequest struct {
	Status        TransactionStatus `json:"status" binding:"required,oneof=pending processing completed failed cancelled"`
	FailureReason string            `json:"failure_reason"`
}

type PayoutRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id" binding:"required"`
	PeriodStart string    `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string    `json:"period_end" binding:"required,datetime=2006-01-02"`
	Notes       string    `json:"notes"`
}

type PayoutStatusRequest struct {
	Status     PayoutStatus `json:"status" binding:"required,oneof=pending processing completed failed"`
	ExternalID string       `json:"external_id"`
}

type DoctorEarnings struct {
	TotalEarnings         decimal.Decimal `json:"total_earnings"`
	DoctorShare           decimal.Decimal `json:"doctor_share"`
	CompletedAppointments int             `json:"completed_appointments"`
	PendingPayout         decimal.Decimal `json:"pending_payout"`
	RecentPayouts         []*DoctorPayout `json:"recent_payouts"`
}
