package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusOpen    SlotStatus = "open"
	SlotStatusBooked  SlotStatus = "booked"
	SlotStatusBlocked SlotStatus = "blocked"
)

const DefaultSlotMinutes = 30

type ScheduleSlot struct {
	Base
	DoctorID        uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	StartTime       time.Time  `json:"start_time" db:"start_time"`
	EndTime         time.Time  `json:"end_time" db:"end_time"`
	DurationMinutes int        `json:"duration_minutes" db:"duration_minutes"`
	Status          SlotStatus `json:"status" db:"status"`
	Notes           string     `json:"notes" db:"notes"`
}

type SlotFilter struct {
	DoctorID *uuid.UUID
	Status   SlotStatus
	From     *time.Time
	To       *time.Time
	Pagination
}

type CreateSlotRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	Notes     string    `json:"notes" binding:"max=500"`
}

// BulkSlotRequest generates slots from the doctor's weekly availability.
type BulkSlotRequest struct {
	From            string `json:"from" binding:"required,datetime=2006-01-02"`
	To              string `json:"to" binding:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,gte=5,lte=240"`
}
