package model

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord is a doctor's note on a patient, optionally tied to an appointment.
type MedicalRecord struct {
	Base
	PatientID               uuid.UUID  `json:"patient_id" db:"patient_id"`
	DoctorID                uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	AppointmentID           *uuid.UUID `json:"appointment_id,omitempty" db:"appointment_id"`
	ChiefComplaint          string     `json:"chief_complaint" db:"chief_complaint"`
	HistoryOfPresentIllness string     `json:"history_of_present_illness" db:"history_of_present_illness"`
	PastMedicalHistory      string     `json:"past_medical_history" db:"past_medical_history"`
	FamilyHistory           string     `json:"family_history" db:"family_history"`
	SocialHistory           string     `json:"social_history" db:"social_history"`
	VitalSigns              JSONMap    `json:"vital_signs" db:"vital_signs"`
	PhysicalExamination     string     `json:"physical_examination" db:"physical_examination"`
	Diagnosis               string     `json:"diagnosis" db:"diagnosis"`
	TreatmentPlan           string     `json:"treatment_plan" db:"treatment_plan"`
	Notes                   string     `json:"notes" db:"notes"`
	FollowUpInstructions    string     `json:"follow_up_instructions" db:"follow_up_instructions"`
	IsActive                bool       `json:"is_active" db:"is_active"`
}

type PrescriptionStatus string

const (
	PrescriptionPending   PrescriptionStatus = "pending"
	PrescriptionFilled    PrescriptionStatus = "filled"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
	PrescriptionExpired   PrescriptionStatus = "expired"
)

type Prescription struct {
	Base
	PatientID       uuid.UUID          `json:"patient_id" db:"patient_id"`
	DoctorID        uuid.UUID          `json:"doctor_id" db:"doctor_id"`
	MedicalRecordID *uuid.UUID         `json:"medical_record_id,omitempty" db:"medical_record_id"`
	AppointmentID   *uuid.UUID         `json:"appointment_id,omitempty" db:"appointment_id"`
	MedicationName  string             `json:"medication_name" db:"medication_name"`
	GenericName     string             `json:"generic_name" db:"generic_name"`
	Dosage          string             `json:"dosage" db:"dosage"`
	Frequency       string             `json:"frequency" db:"frequency"`
	Duration        string             `json:"duration" db:"duration"`
	Quantity        int                `json:"quantity" db:"quantity"`
	Instructions    string             `json:"instructions" db:"instructions"`
	RefillsAllowed  int                `json:"refills_allowed" db:"refills_allowed"`
	RefillsUsed     int                `json:"refills_used" db:"refills_used"`
	Status          PrescriptionStatus `json:"status" db:"status"`
	ExpiryDate      *time.Time         `json:"expiry_date,omitempty" db:"expiry_date"`

	IsExpired bool `json:"is_expired" db:"-"`
}

// Expired reports whether the prescription is past its expiry date at now.
func (p *Prescription) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(now)
}

type LabStatus string

const (
	LabOrdered    LabStatus = "ordered"
	LabInProgress LabStatus = "in_progress"
	LabCompleted  LabStatus = "completed"
	LabCancelled  LabStatus = "cancelled"
)

type LabResult struct {
	Base
	PatientID      uuid.UUID  `json:"patient_id" db:"patient_id"`
	DoctorID       uuid.UUID  `json:"doctor_id" db:"doctor_id"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty" db:"appointment_id"`
	TestName       string     `json:"test_name" db:"test_name"`
	TestType       string     `json:"test_type" db:"test_type"`
	LabName        string     `json:"lab_name" db:"lab_name"`
	TestDate       time.Time  `json:"test_date" db:"test_date"`
	ResultDate     *time.Time `json:"result_date,omitempty" db:"result_date"`
	Results        JSONMap    `json:"results" db:"results"`
	NormalRange    string     `json:"normal_range" db:"normal_range"`
	Interpretation string     `json:"interpretation" db:"interpretation"`
	Status         LabStatus  `json:"status" db:"status"`
}

type VitalSign struct {
	Base
	PatientID              uuid.UUID  `json:"patient_id" db:"patient_id"`
	RecordedBy             uuid.UUID  `json:"recorded_by" db:"recorded_by"`
	AppointmentID          *uuid.UUID `json:"appointment_id,omitempty" db:"appointment_id"`
	BloodPressureSystolic  *int       `json:"blood_pressure_systolic,omitempty" db:"blood_pressure_systolic"`
	BloodPressureDiastolic *int       `json:"blood_pressure_diastolic,omitempty" db:"blood_pressure_diastolic"`
	HeartRate              *int       `json:"heart_rate,omitempty" db:"heart_rate"`
	Temperature            *float64   `json:"temperature,omitempty" db:"temperature"`
	RespiratoryRate        *int       `json:"respiratory_rate,omitempty" db:"respiratory_rate"`
	OxygenSaturation       *int       `json:"oxygen_saturation,omitempty" db:"oxygen_saturation"`
	Weight                 *float64   `json:"weight,omitempty" db:"weight"`
	Height                 *float64   `json:"height,omitempty" db:"height"`
	BMI                    *float64   `json:"bmi,omitempty" db:"bmi"`
	PainLevel              *int       `json:"pain_level,omitempty" db:"pain_level"`
	Notes                  string     `json:"notes" db:"notes"`
	RecordedAt             time.Time  `json:"recorded_at" db:"recorded_at"`
}

type AllergySeverity string

const (
	SeverityMild            AllergySeverity = "mild"
	SeverityModerate        AllergySeverity = "moderate"
	SeveritySevere          AllergySeverity = "severe"
	SeverityLifeThreatening AllergySeverity = "life_threatening"
)

type Allergy struct {
	Base
	PatientID     uuid.UUID       `json:"patient_id" db:"patient_id"`
	RecordedBy    uuid.UUID       `json:"recorded_by" db:"recorded_by"`
	Allergen      string          `json:"allergen" db:"allergen"`
	Reaction      string          `json:"reaction" db:"reaction"`
	Severity      AllergySeverity `json:"severity" db:"severity"`
	Notes         string          `json:"notes" db:"notes"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	ConfirmedDate *time.Time      `json:"confirmed_date,omitempty" db:"confirmed_date"`
}

// EMRScope narrows EMR queries to what the caller may see.
type EMRScope struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Pagination
}

type MedicalRecordRequest struct {
	PatientID               uuid.UUID  `json:"patient_id" binding:"required"`
	AppointmentID           *uuid.UUID `json:"appointment_id"`
	ChiefComplaint          string     `json:"chief_complaint" binding:"required,max=1000"`
	HistoryOfPresentIllness string     `json:"history_of_present_illness"`
	PastMedicalHistory      string     `json:"past_medical_history"`
	FamilyHistory           string     `json:"family_history"`
	SocialHistory           string     `json:"social_history"`
	VitalSigns              JSONMap    `json:"vital_signs"`
	PhysicalExamination     string     `json:"physical_examination"`
	Diagnosis               string     `json:"diagnosis"`
	TreatmentPlan           string     `json:"treatment_plan"`
	Notes                   string     `json:"notes"`
	FollowUpInstructions    string     `json:"follow_up_instructions"`
	IsActive                *bool      `json:"is_active"`
}

type PrescriptionRequest struct {
	PatientID       uuid.UUID           `json:"patient_id" binding:"required"`
	MedicalRecordID *uuid.UUID          `json:"medical_record_id"`
	AppointmentID   *uuid.UUID          `json:"appointment_id"`
	MedicationName  string              `json:"medication_name" binding:"required,max=200"`
	GenericName     string              `json:"generic_name" binding:"max=200"`
	Dosage          string              `json:"dosage" binding:"required,max=100"`
	Frequency       string              `json:"frequency" binding:"required,max=100"`
	Duration        string              `json:"duration" binding:"required,max=100"`
	Quantity        int                 `json:"quantity" binding:"gte=1"`
	Instructions    string              `json:"instructions"`
	RefillsAllowed  int                 `json:"refills_allowed" binding:"gte=0,lte=12"`
	Status          *PrescriptionStatus `json:"status" binding:"omitempty,oneof=pending filled cancelled expired"`
	ExpiryDate      *time.Time          `json:"expiry_date"`
}

type LabResultRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" binding:"required"`
	AppointmentID  *uuid.UUID `json:"appointment_id"`
	TestName       string     `json:"test_name" binding:"required,max=200"`
	TestType       string     `json:"test_type" binding:"max=100"`
	LabName        string     `json:"lab_name" binding:"max=200"`
	TestDate       time.Time  `json:"test_date" binding:"required"`
	ResultDate     *time.Time `json:"result_date"`
	Results        JSONMap    `json:"results"`
	NormalRange    string     `json:"normal_range"`
	Interpretation string     `json:"interpretation"`
	Status         LabStatus  `json:"status" binding:"omitempty,oneof=ordered in_progress completed cancelled"`
}

type VitalSignRequest struct {
	PatientID              uuid.UUID  `json:"patient_id" binding:"required"`
	AppointmentID          *uuid.UUID `json:"appointment_id"`
	BloodPressureSystolic  *int       `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int       `json:"blood_pressure_diastolic"`
	HeartRate              *int       `json:"heart_rate"`
	Temperature            *float64   `json:"temperature"`
	RespiratoryRate        *int       `json:"respiratory_rate"`
	OxygenSaturation       *int       `json:"oxygen_saturation"`
	Weight                 *float64   `json:"weight"`
	Height                 *float64   `json:"height"`
	PainLevel              *int       `json:"pain_level"`
	Notes                  string     `json:"notes"`
	RecordedAt             *time.Time `json:"recorded_at"`
}

type AllergyRequest struct {
	PatientID     uuid.UUID       `json:"patient_id" binding:"required"`
	Allergen      string          `json:"allergen" binding:"required,max=200"`
	Reaction      string          `json:"reaction" binding:"required"`
	Severity      AllergySeverity `json:"severity" binding:"required,oneof=mild moderate severe life_threatening"`
	Notes         string          `json:"notes"`
	IsActive      *bool           `json:"is_active"`
	ConfirmedDate *time.Time      `json:"confirmed_date"`
}

type DoctorEMRStats struct {
	TotalRecords        int `json:"total_records" db:"total_records"`
	TotalPrescriptions  int `json:"total_prescriptions" db:"total_prescriptions"`
	ActivePrescriptions int `json:"active_prescriptions" db:"active_prescriptions"`
	TotalLabResults     int `json:"total_lab_results" db:"total_lab_results"`
	PendingLabResults   int `json:"pending_lab_results" db:"pending_lab_results"`
	PatientsSeen        int `json:"patients_seen" db:"patients_seen"`
}

type PatientSummary struct {
	PatientID           uuid.UUID        `json:"patient_id"`
	RecentRecords       []*MedicalRecord `json:"recent_records"`
	ActivePrescriptions []*Prescription  `json:"active_prescriptions"`
	RecentLabResults    []*LabResult     `json:"recent_lab_results"`
	LatestVitals        *VitalSign       `json:"latest_vitals,omitempty"`
	ActiveAllergies     []*Allergy       `json:"active_allergies"`
}
