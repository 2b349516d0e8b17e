package emr

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

const summaryWindow = 50

var (
	ErrNotAPatient      = apperrors.NewBadRequest("patient_id does not belong to a patient", nil)
	ErrNoRefills        = apperrors.NewBadRequest("no refills remaining", nil)
	ErrPrescriptionDead = apperrors.NewBadRequest("prescription is expired or cancelled", nil)
	ErrAllergyExists    = apperrors.NewConflict("allergy already recorded for this patient")
)

type EMRServicer interface {
	CreateRecord(ctx context.Context, actor model.Actor, req *model.MedicalRecordRequest) (*model.MedicalRecord, error)
	GetRecord(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.MedicalRecord, error)
	UpdateRecord(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.MedicalRecordRequest) (*model.MedicalRecord, error)
	ListRecords(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.MedicalRecord, int, error)

	CreatePrescription(ctx context.Context, actor model.Actor, req *model.PrescriptionRequest) (*model.Prescription, error)
	GetPrescription(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Prescription, error)
	UpdatePrescription(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.PrescriptionRequest) (*model.Prescription, error)
	ListPrescriptions(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.Prescription, int, error)
	Refill(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Prescription, error)

	CreateLabResult(ctx context.Context, actor model.Actor, req *model.LabResultRequest) (*model.LabResult, error)
	GetLabResult(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.LabResult, error)
	UpdateLabResult(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.LabResultRequest) (*model.LabResult, error)
	ListLabResults(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.LabResult, int, error)

	RecordVitals(ctx context.Context, actor model.Actor, req *model.VitalSignRequest) (*model.VitalSign, error)
	ListVitals(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.VitalSign, int, error)

	CreateAllergy(ctx context.Context, actor model.Actor, req *model.AllergyRequest) (*model.Allergy, error)
	UpdateAllergy(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AllergyRequest) (*model.Allergy, error)
	ListAllergies(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.Allergy, int, error)

	DoctorStats(ctx context.Context, actor model.Actor) (*model.DoctorEMRStats, error)
	PatientSummary(ctx context.Context, actor model.Actor, patientID uuid.UUID) (*model.PatientSummary, error)
}

type Service struct {
	repo    repository.EMRRepository
	users   repository.UserRepository
	auditor audit.Auditor
	now     func() time.Time
}

var _ EMRServicer = (*Service)(nil)

func NewService(repo repository.EMRRepository, users repository.UserRepository, auditor audit.Auditor) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		auditor: auditor,
		now:     time.Now,
	}
}

// Medical records

func (s *Service) CreateRecord(ctx context.Context, actor model.Actor, req *model.MedicalRecordRequest) (*model.MedicalRecord, error) {
	if err := s.authoring(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}
	rec := &model.MedicalRecord{
		Base:      model.NewBase(),
		PatientID: req.PatientID,
		DoctorID:  actor.UserID,
		IsActive:  true,
	}
	applyRecord(rec, req)
	if err := s.repo.CreateRecord(ctx, rec); err != nil {
		return nil, service.Translate(err, "medical record")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityMedicalRecord, rec.ID,
		model.JSONMap{"patient_id": rec.PatientID.String()}))
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.MedicalRecord, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "medical record")
	}
	if !canSee(actor, rec.PatientID, rec.DoctorID) {
		return nil, apperrors.NewNotFound("medical record", nil)
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionRead, model.AuditEntityMedicalRecord, rec.ID, nil))
	return rec, nil
}

func (s *Service) UpdateRecord(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.MedicalRecordRequest) (*model.MedicalRecord, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "medical record")
	}
	if err := authorOnly(actor, rec.DoctorID); err != nil {
		return nil, err
	}
	applyRecord(rec, req)
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateRecord(ctx, rec); err != nil {
		return nil, service.Translate(err, "medical record")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityMedicalRecord, rec.ID, nil))
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.MedicalRecord, int, error) {
	scope, err := scopeFor(actor, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListRecords(ctx, scope)
	if err != nil {
		return nil, 0, service.Translate(err, "medical record")
	}
	return items, total, nil
}

func applyRecord(rec *model.MedicalRecord, req *model.MedicalRecordRequest) {
	rec.AppointmentID = req.AppointmentID
	rec.ChiefComplaint = req.ChiefComplaint
	rec.HistoryOfPresentIllness = req.HistoryOfPresentIllness
	rec.PastMedicalHistory = req.PastMedicalHistory
	rec.FamilyHistory = req.FamilyHistory
	rec.SocialHistory = req.SocialHistory
	rec.VitalSigns = req.VitalSigns
	rec.PhysicalExamination = req.PhysicalExamination
	rec.Diagnosis = req.Diagnosis
	rec.TreatmentPlan = req.TreatmentPlan
	rec.Notes = req.Notes
	rec.FollowUpInstructions = req.FollowUpInstructions
	if req.IsActive != nil {
		rec.IsActive = *req.IsActive
	}
}

// Prescriptions

func (s *Service) CreatePrescription(ctx context.Context, actor model.Actor, req *model.PrescriptionRequest) (*model.Prescription, error) {
	if err := s.authoring(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}
	p := &model.Prescription{
		Base:      model.NewBase(),
		PatientID: req.PatientID,
		DoctorID:  actor.UserID,
		Status:    model.PrescriptionPending,
	}
	applyPrescription(p, req)
	if err := s.repo.CreatePrescription(ctx, p); err != nil {
		return nil, service.Translate(err, "prescription")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityPrescription, p.ID,
		model.JSONMap{"patient_id": p.PatientID.String(), "medication": p.MedicationName}))
	return s.decorate(p), nil
}

func (s *Service) GetPrescription(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.repo.GetPrescription(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "prescription")
	}
	if !canSee(actor, p.PatientID, p.DoctorID) {
		return nil, apperrors.NewNotFound("prescription", nil)
	}
	return s.decorate(p), nil
}

func (s *Service) UpdatePrescription(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.PrescriptionRequest) (*model.Prescription, error) {
	p, err := s.repo.GetPrescription(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "prescription")
	}
	if err := authorOnly(actor, p.DoctorID); err != nil {
		return nil, err
	}
	if req.RefillsAllowed < p.RefillsUsed {
		return nil, apperrors.NewBadRequest("refills_allowed cannot be below refills already used", nil)
	}
	applyPrescription(p, req)
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdatePrescription(ctx, p); err != nil {
		return nil, service.Translate(err, "prescription")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityPrescription, p.ID, nil))
	return s.decorate(p), nil
}

func (s *Service) ListPrescriptions(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.Prescription, int, error) {
	scope, err := scopeFor(actor, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListPrescriptions(ctx, scope)
	if err != nil {
		return nil, 0, service.Translate(err, "prescription")
	}
	for _, item := range items {
		s.decorate(item)
	}
	return items, total, nil
}

// Refill uses one refill of a live prescription. The patient or the prescribing
// doctor may ask for it.
func (s *Service) Refill(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.repo.GetPrescription(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "prescription")
	}
	if actor.UserID != p.PatientID && actor.UserID != p.DoctorID {
		return nil, service.ErrPermission
	}
	if p.Status == model.PrescriptionCancelled || p.Status == model.PrescriptionExpired || p.Expired(s.now()) {
		return nil, ErrPrescriptionDead
	}
	if p.RefillsUsed >= p.RefillsAllowed {
		return nil, ErrNoRefills
	}

	updated, err := s.repo.UseRefill(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrNoRefills
		}
		return nil, service.Translate(err, "prescription")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "refill", model.AuditEntityPrescription, id,
		model.JSONMap{"refills_used": updated.RefillsUsed}))
	return s.decorate(updated), nil
}

func (s *Service) decorate(p *model.Prescription) *model.Prescription {
	p.IsExpired = p.Expired(s.now())
	return p
}

func applyPrescription(p *model.Prescription, req *model.PrescriptionRequest) {
	p.MedicalRecordID = req.MedicalRecordID
	p.AppointmentID = req.AppointmentID
	p.MedicationName = req.MedicationName
	p.GenericName = req.GenericName
	p.Dosage = req.Dosage
	p.Frequency = req.Frequency
	p.Duration = req.Duration
	p.Quantity = req.Quantity
	p.Instructions = req.Instructions
	p.RefillsAllowed = req.RefillsAllowed
	p.ExpiryDate = req.ExpiryDate
	if req.Status != nil {
		p.Status = *req.Status
	}
}

// Lab results

func (s *Service) CreateLabResult(ctx context.Context, actor model.Actor, req *model.LabResultRequest) (*model.LabResult, error) {
	if err := s.authoring(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}
	l := &model.LabResult{
		Base:      model.NewBase(),
		PatientID: req.PatientID,
		DoctorID:  actor.UserID,
		Status:    model.LabOrdered,
	}
	if err := applyLab(l, req); err != nil {
		return nil, err
	}
	if err := s.repo.CreateLabResult(ctx, l); err != nil {
		return nil, service.Translate(err, "lab result")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityLabResult, l.ID, nil))
	return l, nil
}

func (s *Service) GetLabResult(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.LabResult, error) {
	l, err := s.repo.GetLabResult(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "lab result")
	}
	if !canSee(actor, l.PatientID, l.DoctorID) {
		return nil, apperrors.NewNotFound("lab result", nil)
	}
	return l, nil
}

func (s *Service) UpdateLabResult(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.LabResultRequest) (*model.LabResult, error) {
	l, err := s.repo.GetLabResult(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "lab result")
	}
	if err := authorOnly(actor, l.DoctorID); err != nil {
		return nil, err
	}
	if err := applyLab(l, req); err != nil {
		return nil, err
	}
	l.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateLabResult(ctx, l); err != nil {
		return nil, service.Translate(err, "lab result")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityLabResult, l.ID, nil))
	return l, nil
}

func (s *Service) ListLabResults(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.LabResult, int, error) {
	scope, err := scopeFor(actor, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListLabResults(ctx, scope)
	if err != nil {
		return nil, 0, service.Translate(err, "lab result")
	}
	return items, total, nil
}

func applyLab(l *model.LabResult, req *model.LabResultRequest) error {
	if req.ResultDate != nil && req.ResultDate.Before(req.TestDate) {
		return apperrors.NewBadRequest("result_date cannot be before test_date", nil)
	}
	l.AppointmentID = req.AppointmentID
	l.TestName = req.TestName
	l.TestType = req.TestType
	l.LabName = req.LabName
	l.TestDate = req.TestDate
	l.ResultDate = req.ResultDate
	l.Results = req.Results
	l.NormalRange = req.NormalRange
	l.Interpretation = req.Interpretation
	if req.Status != "" {
		l.Status = req.Status
	}
	return nil
}

// Vital signs

func (s *Service) RecordVitals(ctx context.Context, actor model.Actor, req *model.VitalSignRequest) (*model.VitalSign, error) {
	if err := s.authoring(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}
	if err := ValidateVitals(req); err != nil {
		return nil, err
	}

	recordedAt := s.now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}
	v := &model.VitalSign{
		Base:                   model.NewBase(),
		PatientID:              req.PatientID,
		RecordedBy:             actor.UserID,
		AppointmentID:          req.AppointmentID,
		BloodPressureSystolic:  req.BloodPressureSystolic,
		BloodPressureDiastolic: req.BloodPressureDiastolic,
		HeartRate:              req.HeartRate,
		Temperature:            req.Temperature,
		RespiratoryRate:        req.RespiratoryRate,
		OxygenSaturation:       req.OxygenSaturation,
		Weight:                 req.Weight,
		Height:                 req.Height,
		PainLevel:              req.PainLevel,
		Notes:                  req.Notes,
		RecordedAt:             recordedAt,
	}
	if req.Weight != nil && req.Height != nil {
		bmi := BMI(*req.Weight, *req.Height)
		v.BMI = &bmi
	}

	if err := s.repo.CreateVitalSign(ctx, v); err != nil {
		return nil, service.Translate(err, "vital sign")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityVitalSign, v.ID, nil))
	return v, nil
}

func (s *Service) ListVitals(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.VitalSign, int, error) {
	scope, err := scopeFor(actor, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListVitalSigns(ctx, scope)
	if err != nil {
		return nil, 0, service.Translate(err, "vital sign")
	}
	return items, total, nil
}

type vitalRange struct {
	name     string
	min, max float64
}

// ValidateVitals checks every reading that is present against its plausible range.
func ValidateVitals(req *model.VitalSignRequest) error {
	ints := []struct {
		v *int
		r vitalRange
	}{
		{req.BloodPressureSystolic, vitalRange{"blood_pressure_systolic", 50, 300}},
		{req.BloodPressureDiastolic, vitalRange{"blood_pressure_diastolic", 30, 200}},
		{req.HeartRate, vitalRange{"heart_rate", 30, 300}},
		{req.RespiratoryRate, vitalRange{"respiratory_rate", 5, 60}},
		{req.OxygenSaturation, vitalRange{"oxygen_saturation", 50, 100}},
		{req.PainLevel, vitalRange{"pain_level", 0, 10}},
	}
	for _, c := range ints {
		if c.v != nil {
			if err := c.r.check(float64(*c.v)); err != nil {
				return err
			}
		}
	}

	floats := []struct {
		v *float64
		r vitalRange
	}{
		{req.Temperature, vitalRange{"temperature", 90, 110}},
		{req.Weight, vitalRange{"weight", 0.1, 1000}},
		{req.Height, vitalRange{"height", 0.1, 300}},
	}
	for _, c := range floats {
		if c.v != nil {
			if err := c.r.check(*c.v); err != nil {
				return err
			}
		}
	}

	if req.BloodPressureSystolic != nil && req.BloodPressureDiastolic != nil &&
		*req.BloodPressureDiastolic >= *req.BloodPressureSystolic {
		return apperrors.NewBadRequest("diastolic pressure must be below systolic", nil)
	}
	return nil
}

func (r vitalRange) check(v float64) error {
	if v < r.min || v > r.max {
		return apperrors.NewBadRequest(r.name+" is out of range", nil)
	}
	return nil
}

// BMI from weight in kilograms and height in centimetres, rounded to one decimal.
func BMI(weightKg, heightCm float64) float64 {
	m := heightCm / 100
	return math.Round(weightKg/(m*m)*10) / 10
}

// Allergies

func (s *Service) CreateAllergy(ctx context.Context, actor model.Actor, req *model.AllergyRequest) (*model.Allergy, error) {
	if err := s.authoring(ctx, actor, req.PatientID); err != nil {
		return nil, err
	}
	a := &model.Allergy{
		Base:       model.NewBase(),
		PatientID:  req.PatientID,
		RecordedBy: actor.UserID,
		IsActive:   true,
	}
	applyAllergy(a, req)
	if err := s.repo.CreateAllergy(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAllergyExists
		}
		return nil, service.Translate(err, "allergy")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityAllergy, a.ID, nil))
	return a, nil
}

func (s *Service) UpdateAllergy(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AllergyRequest) (*model.Allergy, error) {
	a, err := s.repo.GetAllergy(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "allergy")
	}
	if err := authorOnly(actor, a.RecordedBy); err != nil {
		return nil, err
	}
	applyAllergy(a, req)
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAllergy(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAllergyExists
		}
		return nil, service.Translate(err, "allergy")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityAllergy, a.ID, nil))
	return a, nil
}

func (s *Service) ListAllergies(ctx context.Context, actor model.Actor, patientID *uuid.UUID, p model.Pagination) ([]*model.Allergy, int, error) {
	scope, err := scopeFor(actor, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListAllergies(ctx, scope)
	if err != nil {
		return nil, 0, service.Translate(err, "allergy")
	}
	return items, total, nil
}

func applyAllergy(a *model.Allergy, req *model.AllergyRequest) {
	a.Allergen = req.Allergen
	a.Reaction = req.Reaction
	a.Severity = req.Severity
	a.Notes = req.Notes
	a.ConfirmedDate = req.ConfirmedDate
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
}

// Stats

func (s *Service) DoctorStats(ctx context.Context, actor model.Actor) (*model.DoctorEMRStats, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	stats, err := s.repo.DoctorStats(ctx, actor.UserID)
	if err != nil {
		return nil, service.Translate(err, "stats")
	}
	return stats, nil
}

// PatientSummary collects a patient's recent history. Patients and admins see the full
// chart; a doctor sees only the entries they authored.
func (s *Service) PatientSummary(ctx context.Context, actor model.Actor, patientID uuid.UUID) (*model.PatientSummary, error) {
	if actor.IsPatient() && actor.UserID != patientID {
		return nil, service.ErrPermission
	}
	scope, err := scopeFor(actor, &patientID, model.Pagination{Page: 1, PageSize: summaryWindow})
	if err != nil {
		return nil, err
	}

	records, _, err := s.repo.ListRecords(ctx, scope)
	if err != nil {
		return nil, service.Translate(err, "medical record")
	}
	prescriptions, _, err := s.repo.ListPrescriptions(ctx, scope)
	if err != nil {
		return nil, service.Translate(err, "prescription")
	}
	labs, _, err := s.repo.ListLabResults(ctx, scope)
	if err != nil {
		return nil, service.Translate(err, "lab result")
	}
	vitals, _, err := s.repo.ListVitalSigns(ctx, &model.EMRScope{PatientID: scope.PatientID, DoctorID: scope.DoctorID,
		Pagination: model.Pagination{Page: 1, PageSize: 1}})
	if err != nil {
		return nil, service.Translate(err, "vital sign")
	}
	allergies, _, err := s.repo.ListAllergies(ctx, scope)
	if err != nil {
		return nil, service.Translate(err, "allergy")
	}

	summary := &model.PatientSummary{
		PatientID:           patientID,
		RecentRecords:       firstN(records, 5),
		ActivePrescriptions: []*model.Prescription{},
		RecentLabResults:    []*model.LabResult{},
		ActiveAllergies:     []*model.Allergy{},
	}
	for _, p := range prescriptions {
		if p.Status == model.PrescriptionPending || p.Status == model.PrescriptionFilled {
			if !s.decorate(p).IsExpired {
				summary.ActivePrescriptions = append(summary.ActivePrescriptions, p)
			}
		}
	}
	for _, l := range labs {
		if l.Status == model.LabCompleted && len(summary.RecentLabResults) < 5 {
			summary.RecentLabResults = append(summary.RecentLabResults, l)
		}
	}
	if len(vitals) > 0 {
		summary.LatestVitals = vitals[0]
	}
	for _, a := range allergies {
		if a.IsActive {
			summary.ActiveAllergies = append(summary.ActiveAllergies, a)
		}
	}
	return summary, nil
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	if items == nil {
		return []T{}
	}
	return items
}

// authoring checks that the caller is a doctor writing into a patient's chart.
func (s *Service) authoring(ctx context.Context, actor model.Actor, patientID uuid.UUID) error {
	if !actor.IsDoctor() {
		return service.ErrNotDoctor
	}
	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		return service.Translate(err, "patient")
	}
	if patient.Role != model.RolePatient {
		return ErrNotAPatient
	}
	return nil
}

func authorOnly(actor model.Actor, authorID uuid.UUID) error {
	if !actor.IsDoctor() {
		return service.ErrNotDoctor
	}
	if actor.UserID != authorID {
		return service.ErrPermission
	}
	return nil
}

func canSee(actor model.Actor, patientID, authorID uuid.UUID) bool {
	return actor.IsAdmin() || actor.UserID == patientID || actor.UserID == authorID
}

// scopeFor narrows a listing to what the caller may see. patientID is an optional
// filter for doctors and admins.
func scopeFor(actor model.Actor, patientID *uuid.UUID, p model.Pagination) (*model.EMRScope, error) {
	scope := &model.EMRScope{Pagination: p}
	switch {
	case actor.IsPatient():
		scope.PatientID = &actor.UserID
	case actor.IsDoctor():
		scope.DoctorID = &actor.UserID
		scope.PatientID = patientID
	case actor.IsAdmin():
		scope.PatientID = patientID
	default:
		return nil, service.ErrPermission
	}
	return scope, nil
}
