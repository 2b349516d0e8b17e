package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	RoomCreated RoomStatus = "created"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
	RoomExpired RoomStatus = "expired"
)

const (
	RoomLifetime           = 2 * time.Hour
	DefaultMaxParticipants = 2
)

type RTCRoom struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	RoomID           string     `json:"room_id" db:"room_id"`
	AppointmentID    uuid.UUID  `json:"appointment_id" db:"appointment_id"`
	Status           RoomStatus `json:"status" db:"status"`
	CreatedBy        uuid.UUID  `json:"created_by" db:"created_by"`
	MaxParticipants  int        `json:"max_participants" db:"max_participants"`
	RecordingEnabled bool       `json:"recording_enabled" db:"recording_enabled"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	ExpiresAt        time.Time  `json:"expires_at" db:"expires_at"`

	// participants, joined from the appointment
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`
}

// PastExpiry reports whether the room's lifetime is over at now.
func (r *RTCRoom) PastExpiry(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// IsParticipant reports whether userID is the appointment's patient or doctor.
func (r *RTCRoom) IsParticipant(userID uuid.UUID) bool {
	return userID == r.PatientID || userID == r.DoctorID
}

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalIceCandidate SignalType = "ice_candidate"
	SignalJoin         SignalType = "join"
	SignalLeave        SignalType = "leave"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalIceCandidate, SignalJoin, SignalLeave:
		return true
	}
	return false
}

type RTCSignal struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	RoomID     uuid.UUID  `json:"room" db:"room_id"`
	SenderID   uuid.UUID  `json:"sender_id" db:"sender_id"`
	SignalType SignalType `json:"signal_type" db:"signal_type"`
	Payload    JSONMap    `json:"payload" db:"payload"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type RTCJoinToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RoomID    uuid.UUID `json:"room" db:"room_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type JoinResult struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"room_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Room      *RTCRoom  `json:"room"`
}

type RoomStatusView struct {
	RoomID    string     `json:"room_id"`
	Status    RoomStatus `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsExpired bool       `json:"is_expired"`
}

type SignalRequest struct {
	RoomID     string     `json:"room_id" binding:"required"`
	SignalType SignalType `json:"signal_type" binding:"required,oneof=offer answer ice_candidate join leave"`
	Payload    JSONMap    `json:"payload" binding:"required"`
}

// WSMessage is the inbound and outbound frame on the signaling socket.
type WSMessage struct {
	Type       string     `json:"type"`
	SignalType SignalType `json:"signal_type,omitempty"`
	Payload    JSONMap    `json:"payload,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Message    string     `json:"message,omitempty"`
}

const (
	WSTypeSignal     = "rtc_signal"
	WSTypeJoinRoom   = "join_room"
	WSTypeLeaveRoom  = "leave_room"
	WSTypeUserJoined = "user_joined"
	WSTypeUserLeft   = "user_left"
	WSTypeError      = "error"
)
