package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

const doctorSelect = `
	SELECT d.id, d.user_id, d.registration_number, d.years_of_experience, d.specialties,
		   d.bio, d.clinic_name, d.clinic_address, d.consultation_fee, d.kyc_status,
		   d.is_available_for_consultation, d.max_patients_per_day, d.average_rating,
		   d.total_reviews, d.created_at, d.updated_at,
		   u.first_name, u.last_name, u.email
	FROM doctors d
	JOIN users u ON u.id = d.user_id`

// doctorOrderings maps accepted ordering keys to SQL.
var doctorOrderings = map[string]string{
	"consultation_fee":     "d.consultation_fee ASC",
	"-consultation_fee":    "d.consultation_fee DESC",
	"average_rating":       "d.average_rating ASC",
	"-average_rating":      "d.average_rating DESC",
	"years_of_experience":  "d.years_of_experience ASC",
	"-years_of_experience": "d.years_of_experience DESC",
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO doctors (
			id, user_id, registration_number, years_of_experience, specialties, bio,
			clinic_name, clinic_address, consultation_fee, kyc_status,
			is_available_for_consultation, max_patients_per_day, average_rating,
			total_reviews, created_at, updated_at
		) VALUES (
			:id, :user_id, :registration_number, :years_of_experience, :specialties, :bio,
			:clinic_name, :clinic_address, :consultation_fee, :kyc_status,
			:is_available_for_consultation, :max_patients_per_day, :average_rating,
			:total_reviews, :created_at, :updated_at
		)`, doctor)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create doctor: %w", err)
	}
	return nil
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	if err := r.db.GetContext(ctx, &doctor, doctorSelect+` WHERE d.id = $1`, id); err != nil {
		return nil, notFound(err, "doctor")
	}
	return &doctor, nil
}

func (r *doctorRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	if err := r.db.GetContext(ctx, &doctor, doctorSelect+` WHERE d.user_id = $1`, userID); err != nil {
		return nil, notFound(err, "doctor by user")
	}
	return &doctor, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	doctor.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE doctors SET
			years_of_experience = :years_of_experience, specialties = :specialties, bio = :bio,
			clinic_name = :clinic_name, clinic_address = :clinic_address,
			consultation_fee = :consultation_fee,
			is_available_for_consultation = :is_available_for_consultation,
			max_patients_per_day = :max_patients_per_day, updated_at = :updated_at
		WHERE id = :id`, doctor)
	if err != nil {
		return fmt.Errorf("failed to update doctor: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *doctorRepository) SetKYCStatus(ctx context.Context, id uuid.UUID, status model.KYCStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE doctors SET kyc_status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set kyc status: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

// ListDirectory returns verified doctors that accept consultations.
func (r *doctorRepository) ListDirectory(ctx context.Context, filter *model.DoctorFilter) ([]*model.Doctor, int, error) {
	where := ` WHERE d.kyc_status = 'verified' AND d.is_available_for_consultation = TRUE`
	args := []interface{}{}
	argCount := 1

	if filter.Specialty != "" {
		where += fmt.Sprintf(" AND $%d ILIKE ANY(d.specialties)", argCount)
		args = append(args, filter.Specialty)
		argCount++
	}
	if filter.MaxFee != nil {
		where += fmt.Sprintf(" AND d.consultation_fee <= $%d", argCount)
		args = append(args, *filter.MaxFee)
		argCount++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where += fmt.Sprintf(" AND (u.first_name ILIKE $%d OR u.last_name ILIKE $%d OR d.clinic_name ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+s+"%")
		argCount++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM doctors d JOIN users u ON u.id = d.user_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count doctors: %w", err)
	}

	order, ok := doctorOrderings[filter.Ordering]
	if !ok {
		order = "d.average_rating DESC"
	}
	query, args := page(doctorSelect+where+` ORDER BY `+order+`, d.created_at DESC`, args, filter.Pagination)

	var doctors []*model.Doctor
	if err := r.db.SelectContext(ctx, &doctors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, total, nil
}

const availabilityColumns = `id, doctor_id, day_of_week, to_char(start_time, 'HH24:MI') AS start_time,
	to_char(end_time, 'HH24:MI') AS end_time, is_available, break_times, created_at, updated_at`

func (r *doctorRepository) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorAvailability, error) {
	var items []*model.DoctorAvailability
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+availabilityColumns+`
		FROM doctor_availability
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return items, nil
}

func (r *doctorRepository) GetAvailability(ctx context.Context, id uuid.UUID) (*model.DoctorAvailability, error) {
	var a model.DoctorAvailability
	err := r.db.GetContext(ctx, &a, `SELECT `+availabilityColumns+` FROM doctor_availability WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "availability")
	}
	return &a, nil
}

func (r *doctorRepository) CreateAvailability(ctx context.Context, a *model.DoctorAvailability) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO doctor_availability (
			id, doctor_id, day_of_week, start_time, end_time, is_available, break_times,
			created_at, updated_at
		) VALUES (
			:id, :doctor_id, :day_of_week, :start_time, :end_time, :is_available, :break_times,
			:created_at, :updated_at
		)`, a)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create availability: %w", err)
	}
	return nil
}

func (r *doctorRepository) UpdateAvailability(ctx context.Context, a *model.DoctorAvailability) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE doctor_availability SET
			day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time,
			is_available = :is_available, break_times = :break_times, updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to update availability: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *doctorRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM doctor_availability WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete availability: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *doctorRepository) CreateReview(ctx context.Context, review *model.DoctorReview) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO doctor_reviews (
				id, doctor_id, patient_id, appointment_id, rating, communication_rating,
				treatment_rating, punctuality_rating, comment, is_anonymous, created_at, updated_at
			) VALUES (
				:id, :doctor_id, :patient_id, :appointment_id, :rating, :communication_rating,
				:treatment_rating, :punctuality_rating, :comment, :is_anonymous, :created_at, :updated_at
			)`, review)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("failed to create review: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE doctors d SET
				average_rating = s.avg_rating,
				total_reviews = s.cnt,
				updated_at = $2
			FROM (
				SELECT ROUND(AVG(rating)::numeric, 2) AS avg_rating, COUNT(*) AS cnt
				FROM doctor_reviews WHERE doctor_id = $1
			) s
			WHERE d.id = $1`, review.DoctorID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update doctor rating: %w", err)
		}
		return nil
	})
}

func (r *doctorRepository) ListReviews(ctx context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.DoctorReview, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM doctor_reviews WHERE doctor_id = $1`, doctorID); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query, args := page(`
		SELECT r.id, r.doctor_id, r.patient_id, r.appointment_id, r.rating,
			   r.communication_rating, r.treatment_rating, r.punctuality_rating,
			   r.comment, r.is_anonymous, r.created_at, r.updated_at,
			   CASE WHEN r.is_anonymous THEN '' ELSE u.first_name || ' ' || u.last_name END AS patient_name
		FROM doctor_reviews r
		JOIN users u ON u.id = r.patient_id
		WHERE r.doctor_id = $1
		ORDER BY r.created_at DESC`, []interface{}{doctorID}, p)

	var reviews []*model.DoctorReview
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}
