package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
	NotificationStatusRead      NotificationStatus = "read"
	NotificationStatusRetrying  NotificationStatus = "retrying"
)

type NotificationType string

const (
	NotifAppointmentReminder     NotificationType = "appointment_reminder"
	NotifAppointmentConfirmation NotificationType = "appointment_confirmation"
	NotifAppointmentCancelled    NotificationType = "appointment_cancelled"
	NotifPrescriptionReady       NotificationType = "prescription_ready"
	NotifPaymentSuccess          NotificationType = "payment_success"
	NotifPaymentFailed           NotificationType = "payment_failed"
	NotifDoctorMessage           NotificationType = "doctor_message"
	NotifSystemUpdate            NotificationType = "system_update"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
	ChannelInApp = "in_app"
)

type Notification struct {
	Base
	UserID      uuid.UUID          `json:"user_id" db:"user_id"`
	Type        NotificationType   `json:"notification_type" db:"notification_type"`
	Channel     string             `json:"channel" db:"channel"`
	Title       string             `json:"title" db:"title"`
	Message     string             `json:"message" db:"message"`
	Recipient   string             `json:"recipient,omitempty" db:"recipient"`
	Status      NotificationStatus `json:"status" db:"status"`
	ExternalID  string             `json:"external_id,omitempty" db:"external_id"`
	Metadata    JSONMap            `json:"metadata" db:"metadata"`
	RetryCount  int                `json:"retry_count" db:"retry_count"`
	LastError   string             `json:"last_error,omitempty" db:"last_error"`
	NextRetryAt *time.Time         `json:"next_retry_at,omitempty" db:"next_retry_at"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	ReadAt      *time.Time         `json:"read_at,omitempty" db:"read_at"`
}

type NotificationFilter struct {
	UserID     uuid.UUID
	Status     NotificationStatus
	Type       NotificationType
	Channel    string
	UnreadOnly bool
	Pagination
}

type NotificationStats struct {
	Total     int            `json:"total"`
	Unread    int            `json:"unread"`
	ByType    map[string]int `json:"by_type"`
	ByChannel map[string]int `json:"by_channel"`
	ByStatus  map[string]int `json:"by_status"`
}

type SendNotificationRequest struct {
	UserID   uuid.UUID        `json:"user_id" binding:"required"`
	Type     NotificationType `json:"notification_type" binding:"required,oneof=appointment_reminder appointment_confirmation appointment_cancelled prescription_ready payment_success payment_failed doctor_message system_update"`
	Channel  string           `json:"channel" binding:"required,oneof=email sms push in_app"`
	Title    string           `json:"title" binding:"required,max=200"`
	Message  string           `json:"message" binding:"required"`
	Metadata JSONMap          `json:"metadata"`
}

type BulkNotificationRequest struct {
	UserIDs  []uuid.UUID      `json:"user_ids" binding:"required,min=1,max=1000"`
	Type     NotificationType `json:"notification_type" binding:"required,oneof=appointment_reminder appointment_confirmation appointment_cancelled prescription_ready payment_success payment_failed doctor_message system_update"`
	Channel  string           `json:"channel" binding:"required,oneof=email sms push in_app"`
	Title    string           `json:"title" binding:"required,max=200"`
	Message  string           `json:"message" binding:"required"`
	Metadata JSONMap          `json:"metadata"`
}
