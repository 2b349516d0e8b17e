package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

const (
	MaxYearsOfExperience     = 50
	DefaultMaxPatientsPerDay = 20
)

type Doctor struct {
	Base
	UserID                     uuid.UUID       `json:"user_id" db:"user_id"`
	RegistrationNumber         string          `json:"registration_number" db:"registration_number"`
	YearsOfExperience          int             `json:"years_of_experience" db:"years_of_experience"`
	Specialties                pq.StringArray  `json:"specialties" db:"specialties"`
	Bio                        string          `json:"bio" db:"bio"`
	ClinicName                 string          `json:"clinic_name" db:"clinic_name"`
	ClinicAddress              string          `json:"clinic_address" db:"clinic_address"`
	ConsultationFee            decimal.Decimal `json:"consultation_fee" db:"consultation_fee"`
	KYCStatus                  KYCStatus       `json:"kyc_status" db:"kyc_status"`
	IsAvailableForConsultation bool            `json:"is_available_for_consultation" db:"is_available_for_consultation"`
	MaxPatientsPerDay          int             `json:"max_patients_per_day" db:"max_patients_per_day"`
	AverageRating              decimal.Decimal `json:"average_rating" db:"average_rating"`
	TotalReviews               int             `json:"total_reviews" db:"total_reviews"`

	// joined from users
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
}

// Listed reports whether the doctor appears in the public directory.
func (d *Doctor) Listed() bool {
	return d.IsAvailableForConsultation && d.KYCStatus == KYCVerified
}

type BreakTime struct {
	Start string `json:"start" binding:"required,hhmm"`
	End   string `json:"end" binding:"required,hhmm"`
}

// BreakTimes is stored as a jsonb array.
type BreakTimes []BreakTime

func (b BreakTimes) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (b *BreakTimes) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*b = BreakTimes{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for BreakTimes")
	}
	return json.Unmarshal(data, b)
}

type DoctorAvailability struct {
	Base
	DoctorID    uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	DayOfWeek   int        `json:"day_of_week" db:"day_of_week"`
	StartTime   string     `json:"start_time" db:"start_time"`
	EndTime     string     `json:"end_time" db:"end_time"`
	IsAvailable bool       `json:"is_available" db:"is_available"`
	BreakTimes  BreakTimes `json:"break_times" db:"break_times"`
}

type DoctorReview struct {
	Base
	DoctorID            uuid.UUID `json:"doctor_id" db:"doctor_id"`
	PatientID           uuid.UUID `json:"patient_id" db:"patient_id"`
	AppointmentID       uuid.UUID `json:"appointment_id" db:"appointment_id"`
	Rating              int       `json:"rating" db:"rating"`
	CommunicationRating *int      `json:"communication_rating,omitempty" db:"communication_rating"`
	TreatmentRating     *int      `json:"treatment_rating,omitempty" db:"treatment_rating"`
	PunctualityRating   *int      `json:"punctuality_rating,omitempty" db:"punctuality_rating"`
	Comment             string    `json:"comment" db:"comment"`
	IsAnonymous         bool      `json:"is_anonymous" db:"is_anonymous"`
	PatientName         string    `json:"patient_name,omitempty" db:"patient_name"`
}

type DoctorFilter struct {
	Specialty string
	MaxFee    *decimal.Decimal
	Search    string
	// Ordering accepts consultation_fee, average_rating, years_of_experience, optionally prefixed with "-".
	Ordering string
	Pagination
}

type RegisterDoctorRequest struct {
	RegistrationNumber string          `json:"registration_number" binding:"required,max=50"`
	YearsOfExperience  int             `json:"years_of_experience" binding:"gte=0,lte=50"`
	Specialties        []string        `json:"specialties" binding:"required,min=1,dive,required"`
	Bio                string          `json:"bio" binding:"max=2000"`
	ClinicName         string          `json:"clinic_name" binding:"max=200"`
	ClinicAddress      string          `json:"clinic_address"`
	ConsultationFee    decimal.Decimal `json:"consultation_fee" binding:"required"`
	MaxPatientsPerDay  int             `json:"max_patients_per_day" binding:"omitempty,gte=1,lte=200"`
}

type UpdateDoctorRequest struct {
	YearsOfExperience          *int             `json:"years_of_experience" binding:"omitempty,gte=0,lte=50"`
	Specialties                []string         `json:"specialties" binding:"omitempty,min=1,dive,required"`
	Bio                        *string          `json:"bio" binding:"omitempty,max=2000"`
	ClinicName                 *string          `json:"clinic_name" binding:"omitempty,max=200"`
	ClinicAddress              *string          `json:"clinic_address"`
	ConsultationFee            *decimal.Decimal `json:"consultation_fee"`
	IsAvailableForConsultation *bool            `json:"is_available_for_consultation"`
	MaxPatientsPerDay          *int             `json:"max_patients_per_day" binding:"omitempty,gte=1,lte=200"`
}

type AvailabilityRequest struct {
	DayOfWeek   int         `json:"day_of_week" binding:"gte=0,lte=6"`
	StartTime   string      `json:"start_time" binding:"required,hhmm"`
	EndTime     string      `json:"end_time" binding:"required,hhmm"`
	IsAvailable *bool       `json:"is_available"`
	BreakTimes  []BreakTime `json:"break_times" binding:"omitempty,dive"`
}

type ReviewRequest struct {
	AppointmentID       uuid.UUID `json:"appointment_id" binding:"required"`
	Rating              int       `json:"rating" binding:"required,gte=1,lte=5"`
	CommunicationRating *int      `json:"communication_rating" binding:"omitempty,gte=1,lte=5"`
	TreatmentRating     *int      `json:"treatment_rating" binding:"omitempty,gte=1,lte=5"`
	PunctualityRating   *int      `json:"punctuality_rating" binding:"omitempty,gte=1,lte=5"`
	Comment             string    `json:"comment" binding:"max=2000"`
	IsAnonymous         bool      `json:"is_anonymous"`
}

type KYCRequest struct {
	Status KYCStatus `json:"kyc_status" binding:"required,oneof=pending verified rejected"`
}
