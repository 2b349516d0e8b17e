package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusLocked UserStatus = "locked"
)

type User struct {
	Base
	Email                 string     `json:"email" db:"email"`
	PasswordHash          string     `json:"-" db:"password_hash"`
	FirstName             string     `json:"first_name" db:"first_name"`
	LastName              string     `json:"last_name" db:"last_name"`
	Role                  Role       `json:"role" db:"role"`
	Phone                 *string    `json:"phone,omitempty" db:"phone"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender                *string    `json:"gender,omitempty" db:"gender"`
	AddressLine1          string     `json:"address_line1" db:"address_line1"`
	AddressLine2          string     `json:"address_line2" db:"address_line2"`
	City                  string     `json:"city" db:"city"`
	State                 string     `json:"state" db:"state"`
	PostalCode            string     `json:"postal_code" db:"postal_code"`
	Country               string     `json:"country" db:"country"`
	IsPhoneVerified       bool       `json:"is_phone_verified" db:"is_phone_verified"`
	IsEmailVerified       bool       `json:"is_email_verified" db:"is_email_verified"`
	IsIdentityVerified    bool       `json:"is_identity_verified" db:"is_identity_verified"`
	EmergencyContactName  string     `json:"emergency_contact_name" db:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone" db:"emergency_contact_phone"`
	EmergencyContactRel   string     `json:"emergency_contact_relationship" db:"emergency_contact_relationship"`
	Status                UserStatus `json:"status" db:"status"`
	LoginAttempts         int        `json:"-" db:"login_attempts"`
	LockedUntil           *time.Time `json:"-" db:"locked_until"`
	LastLoginAt           *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

type UserProfile struct {
	UserID              uuid.UUID `json:"user_id" db:"user_id"`
	ProfileImage        string    `json:"profile_image" db:"profile_image"`
	BloodType           string    `json:"blood_type" db:"blood_type"`
	Allergies           string    `json:"allergies" db:"allergies"`
	MedicalConditions   string    `json:"medical_conditions" db:"medical_conditions"`
	CurrentMedications  string    `json:"current_medications" db:"current_medications"`
	PreferredLanguage   string    `json:"preferred_language" db:"preferred_language"`
	Timezone            string    `json:"timezone" db:"timezone"`
	ShareMedicalHistory bool      `json:"share_medical_history" db:"share_medical_history"`
	AllowTelemedicine   bool      `json:"allow_telemedicine" db:"allow_telemedicine"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultProfile is created alongside every account.
func DefaultProfile(userID uuid.UUID) *UserProfile {
	now := time.Now().UTC()
	return &UserProfile{
		UserID:              userID,
		PreferredLanguage:   "en",
		Timezone:            "UTC",
		ShareMedicalHistory: false,
		AllowTelemedicine:   true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

type RegisterRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8"`
	FirstName string  `json:"first_name" binding:"required,max=100"`
	LastName  string  `json:"last_name" binding:"required,max=100"`
	Role      Role    `json:"role" binding:"omitempty,oneof=patient doctor"`
	Phone     *string `json:"phone" binding:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UpdateProfileRequest struct {
	FirstName             *string    `json:"first_name" binding:"omitempty,max=100"`
	LastName              *string    `json:"last_name" binding:"omitempty,max=100"`
	Phone                 *string    `json:"phone" binding:"omitempty,phone"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Gender                *string    `json:"gender" binding:"omitempty,oneof=M F O N"`
	AddressLine1          *string    `json:"address_line1"`
	AddressLine2          *string    `json:"address_line2"`
	City                  *string    `json:"city"`
	State                 *string    `json:"state"`
	PostalCode            *string    `json:"postal_code"`
	Country               *string    `json:"country"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone" binding:"omitempty,phone"`
	EmergencyContactRel   *string    `json:"emergency_contact_relationship"`
	BloodType             *string    `json:"blood_type" binding:"omitempty,max=5"`
	Allergies             *string    `json:"allergies"`
	MedicalConditions     *string    `json:"medical_conditions"`
	CurrentMedications    *string    `json:"current_medications"`
	PreferredLanguage     *string    `json:"preferred_language"`
	Timezone              *string    `json:"timezone"`
	ShareMedicalHistory   *bool      `json:"share_medical_history"`
	AllowTelemedicine     *bool      `json:"allow_telemedicine"`
}

type VerifyPhoneRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

type VerifyIdentityRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Verified bool      `json:"verified"`
}

type UserFilter struct {
	Role   Role
	Search string
	Pagination
}

// UserWithProfile is the shape returned by /users/me and /users/profile.
type UserWithProfile struct {
	*User
	Profile *UserProfile `json:"profile,omitempty"`
}
