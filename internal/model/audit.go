package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Action     string     `json:"action" db:"action"`
	EntityType string     `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Changes    JSONMap    `json:"changes" db:"changes"`
	Metadata   JSONMap    `json:"metadata" db:"metadata"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	UserAgent  string     `json:"user_agent" db:"user_agent"`
	Path       string     `json:"path" db:"path"`
	Method     string     `json:"method" db:"method"`
	StatusCode int        `json:"status_code" db:"status_code"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate           = "create"
	AuditActionRead             = "read"
	AuditActionUpdate           = "update"
	AuditActionDelete           = "delete"
	AuditActionLogin            = "login"
	AuditActionLogout           = "logout"
	AuditActionFailedLogin      = "failed_login"
	AuditActionPasswordChange   = "password_change"
	AuditActionPermissionChange = "permission_change"

	// Entity types
	AuditEntityUser          = "user"
	AuditEntityDoctor        = "doctor"
	AuditEntitySlot          = "schedule_slot"
	AuditEntityAppointment   = "appointment"
	AuditEntityMedicalRecord = "medical_record"
	AuditEntityPrescription  = "prescription"
	AuditEntityLabResult     = "lab_result"
	AuditEntityVitalSign     = "vital_sign"
	AuditEntityAllergy       = "allergy"
	AuditEntityPayment       = "payment"
	AuditEntityPayout        = "payout"
	AuditEntityRoom          = "rtc_room"
	AuditEntityNotification  = "notification"
	AuditEntityRequest       = "request"
)

type AuditFilter struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	From       *time.Time
	To         *time.Time
	Pagination
}
