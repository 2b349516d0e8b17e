package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type emrRepository struct {
	BaseRepository
}

func NewEMRRepository(base BaseRepository) repository.EMRRepository {
	return &emrRepository{base}
}

// scopeWhere narrows a query to the patient and/or author in scope. authorCol is the
// column holding the authoring doctor's user id.
func scopeWhere(scope *model.EMRScope, authorCol string) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if scope.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, *scope.PatientID)
		argCount++
	}
	if scope.DoctorID != nil {
		where += fmt.Sprintf(" AND %s = $%d", authorCol, argCount)
		args = append(args, *scope.DoctorID)
		argCount++
	}
	return where, args
}

func (r *emrRepository) count(ctx context.Context, table, where string, args []interface{}) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM `+table+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return total, nil
}

// Medical records

const recordColumns = `
	id, patient_id, doctor_id, appointment_id, chief_complaint, history_of_present_illness,
	past_medical_history, family_history, social_history, vital_signs, physical_examination,
	diagnosis, treatment_plan, notes, follow_up_instructions, is_active, created_at, updated_at`

func (r *emrRepository) CreateRecord(ctx context.Context, rec *model.MedicalRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO medical_records (`+recordColumns+`)
		VALUES (
			:id, :patient_id, :doctor_id, :appointment_id, :chief_complaint, :history_of_present_illness,
			:past_medical_history, :family_history, :social_history, :vital_signs, :physical_examination,
			:diagnosis, :treatment_plan, :notes, :follow_up_instructions, :is_active, :created_at, :updated_at
		)`, rec)
	if err != nil {
		return fmt.Errorf("failed to create medical record: %w", err)
	}
	return nil
}

func (r *emrRepository) GetRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	var rec model.MedicalRecord
	if err := r.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM medical_records WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "medical record")
	}
	return &rec, nil
}

func (r *emrRepository) UpdateRecord(ctx context.Context, rec *model.MedicalRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE medical_records SET
			chief_complaint = :chief_complaint,
			history_of_present_illness = :history_of_present_illness,
			past_medical_history = :past_medical_history, family_history = :family_history,
			social_history = :social_history, vital_signs = :vital_signs,
			physical_examination = :physical_examination, diagnosis = :diagnosis,
			treatment_plan = :treatment_plan, notes = :notes,
			follow_up_instructions = :follow_up_instructions, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`, rec)
	if err != nil {
		return fmt.Errorf("failed to update medical record: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *emrRepository) ListRecords(ctx context.Context, scope *model.EMRScope) ([]*model.MedicalRecord, int, error) {
	where, args := scopeWhere(scope, "doctor_id")
	total, err := r.count(ctx, "medical_records", where, args)
	if err != nil {
		return nil, 0, err
	}

	query, args := page(`SELECT `+recordColumns+` FROM medical_records`+where+` ORDER BY created_at DESC`, args, scope.Pagination)
	var recs []*model.MedicalRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list medical records: %w", err)
	}
	return recs, total, nil
}

// Prescriptions

const prescriptionColumns = `
	id, patient_id, doctor_id, medical_record_id, appointment_id, medication_name, generic_name,
	dosage, frequency, duration, quantity, instructions, refills_allowed, refills_used, status,
	expiry_date, created_at, updated_at`

func (r *emrRepository) CreatePrescription(ctx context.Context, p *model.Prescription) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES (
			:id, :patient_id, :doctor_id, :medical_record_id, :appointment_id, :medication_name, :generic_name,
			:dosage, :frequency, :duration, :quantity, :instructions, :refills_allowed, :refills_used, :status,
			:expiry_date, :created_at, :updated_at
		)`, p)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *emrRepository) GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "prescription")
	}
	return &p, nil
}

func (r *emrRepository) UpdatePrescription(ctx context.Context, p *model.Prescription) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE prescriptions SET
			medication_name = :medication_name, generic_name = :generic_name, dosage = :dosage,
			frequency = :frequency, duration = :duration, quantity = :quantity,
			instructions = :instructions, refills_allowed = :refills_allowed, status = :status,
			expiry_date = :expiry_date, updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *emrRepository) ListPrescriptions(ctx context.Context, scope *model.EMRScope) ([]*model.Prescription, int, error) {
	where, args := scopeWhere(scope, "doctor_id")
	total, err := r.count(ctx, "prescriptions", where, args)
	if err != nil {
		return nil, 0, err
	}

	query, args := page(`SELECT `+prescriptionColumns+` FROM prescriptions`+where+` ORDER BY created_at DESC`, args, scope.Pagination)
	var items []*model.Prescription
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return items, total, nil
}

func (r *emrRepository) UseRefill(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.GetContext(ctx, &p, `
		UPDATE prescriptions
		SET refills_used = refills_used + 1, updated_at = $2
		WHERE id = $1 AND refills_used < refills_allowed
		RETURNING `+prescriptionColumns, id, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refill prescription: %w", err)
	}
	return &p, nil
}

// Lab results

const labColumns = `
	id, patient_id, doctor_id, appointment_id, test_name, test_type, lab_name, test_date,
	result_date, results, normal_range, interpretation, status, created_at, updated_at`

func (r *emrRepository) CreateLabResult(ctx context.Context, l *model.LabResult) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO lab_results (`+labColumns+`)
		VALUES (
			:id, :patient_id, :doctor_id, :appointment_id, :test_name, :test_type, :lab_name, :test_date,
			:result_date, :results, :normal_range, :interpretation, :status, :created_at, :updated_at
		)`, l)
	if err != nil {
		return fmt.Errorf("failed to create lab result: %w", err)
	}
	return nil
}

func (r *emrRepository) GetLabResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	var l model.LabResult
	if err := r.db.GetContext(ctx, &l, `SELECT `+labColumns+` FROM lab_results WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "lab result")
	}
	return &l, nil
}

func (r *emrRepository) UpdateLabResult(ctx context.Context, l *model.LabResult) error {
	l.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE lab_results SET
			test_name = :test_name, test_type = :test_type, lab_name = :lab_name,
			test_date = :test_date, result_date = :result_date, results = :results,
			normal_range = :normal_range, interpretation = :interpretation, status = :status,
			updated_at = :updated_at
		WHERE id = :id`, l)
	if err != nil {
		return fmt.Errorf("failed to update lab result: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *emrRepository) ListLabResults(ctx context.Context, scope *model.EMRScope) ([]*model.LabResult, int, error) {
	where, args := scopeWhere(scope, "doctor_id")
	total, err := r.count(ctx, "lab_results", where, args)
	if err != nil {
		return nil, 0, err
	}

	query, args := page(`SELECT `+labColumns+` FROM lab_results`+where+` ORDER BY test_date DESC`, args, scope.Pagination)
	var items []*model.LabResult
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list lab results: %w", err)
	}
	return items, total, nil
}

// Vital signs

const vitalColumns = `
	id, patient_id, recorded_by, appointment_id, blood_pressure_systolic, blood_pressure_diastolic,
	heart_rate, temperature, respiratory_rate, oxygen_saturation, weight, height, bmi, pain_level,
	notes, recorded_at, created_at, updated_at`

func (r *emrRepository) CreateVitalSign(ctx context.Context, v *model.VitalSign) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO vital_signs (`+vitalColumns+`)
		VALUES (
			:id, :patient_id, :recorded_by, :appointment_id, :blood_pressure_systolic, :blood_pressure_diastolic,
			:heart_rate, :temperature, :respiratory_rate, :oxygen_saturation, :weight, :height, :bmi, :pain_level,
			:notes, :recorded_at, :created_at, :updated_at
		)`, v)
	if err != nil {
		return fmt.Errorf("failed to create vital signs: %w", err)
	}
	return nil
}

func (r *emrRepository) ListVitalSigns(ctx context.Context, scope *model.EMRScope) ([]*model.VitalSign, int, error) {
	where, args := scopeWhere(scope, "recorded_by")
	total, err := r.count(ctx, "vital_signs", where, args)
	if err != nil {
		return nil, 0, err
	}

	query, args := page(`SELECT `+vitalColumns+` FROM vital_signs`+where+` ORDER BY recorded_at DESC`, args, scope.Pagination)
	var items []*model.VitalSign
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list vital signs: %w", err)
	}
	return items, total, nil
}

// Allergies

const allergyColumns = `
	id, patient_id, recorded_by, allergen, reaction, severity, notes, is_active, confirmed_date,
	created_at, updated_at`

func (r *emrRepository) CreateAllergy(ctx context.Context, a *model.Allergy) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO allergies (`+allergyColumns+`)
		VALUES (
			:id, :patient_id, :recorded_by, :allergen, :reaction, :severity, :notes, :is_active, :confirmed_date,
			:created_at, :updated_at
		)`, a)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create allergy: %w", err)
	}
	return nil
}

func (r *emrRepository) GetAllergy(ctx context.Context, id uuid.UUID) (*model.Allergy, error) {
	var a model.Allergy
	if err := r.db.GetContext(ctx, &a, `SELECT `+allergyColumns+` FROM allergies WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "allergy")
	}
	return &a, nil
}

func (r *emrRepository) UpdateAllergy(ctx context.Context, a *model.Allergy) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE allergies SET
			allergen = :allergen, reaction = :reaction, severity = :severity, notes = :notes,
			is_active = :is_active, confirmed_date = :confirmed_date, updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to update allergy: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *emrRepository) ListAllergies(ctx context.Context, scope *model.EMRScope) ([]*model.Allergy, int, error) {
	where, args := scopeWhere(scope, "recorded_by")
	total, err := r.count(ctx, "allergies", where, args)
	if err != nil {
		return nil, 0, err
	}

	query, args := page(`SELECT `+allergyColumns+` FROM allergies`+where+` ORDER BY created_at DESC`, args, scope.Pagination)
	var items []*model.Allergy
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list allergies: %w", err)
	}
	return items, total, nil
}

func (r *emrRepository) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*model.DoctorEMRStats, error) {
	var stats model.DoctorEMRStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM medical_records WHERE doctor_id = $1) AS total_records,
			(SELECT COUNT(*) FROM prescriptions WHERE doctor_id = $1) AS total_prescriptions,
			(SELECT COUNT(*) FROM prescriptions WHERE doctor_id = $1 AND status IN ('pending', 'filled')) AS active_prescriptions,
			(SELECT COUNT(*) FROM lab_results WHERE doctor_id = $1) AS total_lab_results,
			(SELECT COUNT(*) FROM lab_results WHERE doctor_id = $1 AND status IN ('ordered', 'in_progress')) AS pending_lab_results,
			(SELECT COUNT(DISTINCT patient_id) FROM medical_records WHERE doctor_id = $1) AS patients_seen`,
		doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get emr stats: %w", err)
	}
	return &stats, nil
}
