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

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

const userColumns = `
	id, email, password_hash, first_name, last_name, role, phone, date_of_birth, gender,
	address_line1, address_line2, city, state, postal_code, country,
	is_phone_verified, is_email_verified, is_identity_verified,
	emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	status, login_attempts, locked_until, last_login_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *model.User, profile *model.UserProfile) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (
				:id, :email, :password_hash, :first_name, :last_name, :role, :phone, :date_of_birth, :gender,
				:address_line1, :address_line2, :city, :state, :postal_code, :country,
				:is_phone_verified, :is_email_verified, :is_identity_verified,
				:emergency_contact_name, :emergency_contact_phone, :emergency_contact_relationship,
				:status, :login_attempts, :locked_until, :last_login_at, :created_at, :updated_at
			)`, user)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if profile == nil {
			return nil
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO user_profiles (
				user_id, profile_image, blood_type, allergies, medical_conditions,
				current_medications, preferred_language, timezone,
				share_medical_history, allow_telemedicine, created_at, updated_at
			) VALUES (
				:user_id, :profile_image, :blood_type, :allergies, :medical_conditions,
				:current_medications, :preferred_language, :timezone,
				:share_medical_history, :allow_telemedicine, :created_at, :updated_at
			)`, profile)
		if err != nil {
			return fmt.Errorf("failed to create user profile: %w", err)
		}
		return nil
	})
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, notFound(err, "user by email")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users SET
			first_name = :first_name, last_name = :last_name, phone = :phone,
			date_of_birth = :date_of_birth, gender = :gender,
			address_line1 = :address_line1, address_line2 = :address_line2, city = :city,
			state = :state, postal_code = :postal_code, country = :country,
			emergency_contact_name = :emergency_contact_name,
			emergency_contact_phone = :emergency_contact_phone,
			emergency_contact_relationship = :emergency_contact_relationship,
			status = :status, updated_at = :updated_at
		WHERE id = :id`, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *userRepository) RecordLogin(ctx context.Context, id uuid.UUID, attempts int, lockedUntil, lastLogin *time.Time) error {
	query := `
		UPDATE users
		SET login_attempts = $1, locked_until = $2,
			last_login_at = COALESCE($3, last_login_at), updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, attempts, lockedUntil, lastLogin, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *userRepository) List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", argCount)
		args = append(args, filter.Role)
		argCount++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+s+"%")
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query, args := page(`SELECT `+userColumns+` FROM users`+where+` ORDER BY created_at DESC`, args, filter.Pagination)
	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.GetContext(ctx, &profile, `
		SELECT user_id, profile_image, blood_type, allergies, medical_conditions,
			   current_medications, preferred_language, timezone,
			   share_medical_history, allow_telemedicine, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, notFound(err, "user profile")
	}
	return &profile, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, profile *model.UserProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE user_profiles SET
			profile_image = :profile_image, blood_type = :blood_type, allergies = :allergies,
			medical_conditions = :medical_conditions, current_medications = :current_medications,
			preferred_language = :preferred_language, timezone = :timezone,
			share_medical_history = :share_medical_history,
			allow_telemedicine = :allow_telemedicine, updated_at = :updated_at
		WHERE user_id = :user_id`, profile)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *userRepository) SetPhoneVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_phone_verified = $1, updated_at = $2 WHERE id = $3`,
		verified, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set phone verification: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}

func (r *userRepository) SetIdentityVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_identity_verified = $1, updated_at = $2 WHERE id = $3`,
		verified, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set identity verification: %w", err)
	}
	return expectOne(res, repository.ErrNotFound)
}
