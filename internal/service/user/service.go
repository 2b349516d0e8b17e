package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/internal/sms"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

var (
	ErrNoPhone          = apperrors.NewBadRequest("add a phone number to your profile first", nil)
	ErrInvalidCode      = apperrors.NewBadRequest("invalid or expired verification code", nil)
	ErrSMSNotConfigured = apperrors.NewBadRequest("phone verification is not available", nil)
)

type UserServicer interface {
	Me(ctx context.Context, actor model.Actor) (*model.UserWithProfile, error)
	UpdateProfile(ctx context.Context, actor model.Actor, req *model.UpdateProfileRequest) (*model.UserWithProfile, error)
	List(ctx context.Context, actor model.Actor, filter *model.UserFilter) ([]*model.User, int, error)
	StartPhoneVerification(ctx context.Context, actor model.Actor) error
	CheckPhoneVerification(ctx context.Context, actor model.Actor, code string) error
	VerifyIdentity(ctx context.Context, actor model.Actor, req *model.VerifyIdentityRequest) error
}

type Service struct {
	repo     repository.UserRepository
	verifier sms.Verifier
	auditor  audit.Auditor
}

var _ UserServicer = (*Service)(nil)

func NewService(repo repository.UserRepository, verifier sms.Verifier, auditor audit.Auditor) *Service {
	return &Service{
		repo:     repo,
		verifier: verifier,
		auditor:  auditor,
	}
}

func (s *Service) Me(ctx context.Context, actor model.Actor) (*model.UserWithProfile, error) {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, service.Translate(err, "user")
	}
	profile, err := s.repo.GetProfile(ctx, actor.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, service.Translate(err, "user profile")
	}
	return &model.UserWithProfile{User: user, Profile: profile}, nil
}

// UpdateProfile applies the non-nil fields of req to the account and its profile.
func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, req *model.UpdateProfileRequest) (*model.UserWithProfile, error) {
	current, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	user := current.User
	profile := current.Profile
	if profile == nil {
		profile = model.DefaultProfile(user.ID)
	}

	phoneChanged := req.Phone != nil && (user.Phone == nil || *user.Phone != *req.Phone)

	setString(&user.FirstName, req.FirstName)
	setString(&user.LastName, req.LastName)
	setString(&user.AddressLine1, req.AddressLine1)
	setString(&user.AddressLine2, req.AddressLine2)
	setString(&user.City, req.City)
	setString(&user.State, req.State)
	setString(&user.PostalCode, req.PostalCode)
	setString(&user.Country, req.Country)
	setString(&user.EmergencyContactName, req.EmergencyContactName)
	setString(&user.EmergencyContactPhone, req.EmergencyContactPhone)
	setString(&user.EmergencyContactRel, req.EmergencyContactRel)
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = req.DateOfBirth
	}
	if req.Gender != nil {
		user.Gender = req.Gender
	}
	// a new number has to be verified again
	if phoneChanged {
		user.IsPhoneVerified = false
	}
	user.UpdatedAt = time.Now().UTC()

	setString(&profile.BloodType, req.BloodType)
	setString(&profile.Allergies, req.Allergies)
	setString(&profile.MedicalConditions, req.MedicalConditions)
	setString(&profile.CurrentMedications, req.CurrentMedications)
	setString(&profile.PreferredLanguage, req.PreferredLanguage)
	setString(&profile.Timezone, req.Timezone)
	if req.ShareMedicalHistory != nil {
		profile.ShareMedicalHistory = *req.ShareMedicalHistory
	}
	if req.AllowTelemedicine != nil {
		profile.AllowTelemedicine = *req.AllowTelemedicine
	}
	profile.UpdatedAt = user.UpdatedAt

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, service.Translate(err, "user")
	}
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, service.Translate(err, "user profile")
	}

	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityUser, user.ID,
		model.JSONMap{"phone_changed": phoneChanged}))
	return &model.UserWithProfile{User: user, Profile: profile}, nil
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter *model.UserFilter) ([]*model.User, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, service.ErrNotAdmin
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "user")
	}
	return users, total, nil
}

// StartPhoneVerification sends a one-time code to the caller's phone.
func (s *Service) StartPhoneVerification(ctx context.Context, actor model.Actor) error {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return service.Translate(err, "user")
	}
	if user.Phone == nil || *user.Phone == "" {
		return ErrNoPhone
	}
	if err := s.verifier.StartVerification(ctx, *user.Phone); err != nil {
		if errors.Is(err, sms.ErrNotConfigured) {
			return ErrSMSNotConfigured
		}
		return apperrors.NewInternal(err)
	}
	return nil
}

// CheckPhoneVerification marks the phone verified when the code is approved.
func (s *Service) CheckPhoneVerification(ctx context.Context, actor model.Actor, code string) error {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return service.Translate(err, "user")
	}
	if user.Phone == nil || *user.Phone == "" {
		return ErrNoPhone
	}

	approved, err := s.verifier.CheckVerification(ctx, *user.Phone, code)
	if err != nil {
		if errors.Is(err, sms.ErrNotConfigured) {
			return ErrSMSNotConfigured
		}
		return apperrors.NewInternal(err)
	}
	if !approved {
		return ErrInvalidCode
	}

	if err := s.repo.SetPhoneVerified(ctx, user.ID, true); err != nil {
		return service.Translate(err, "user")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "verify_phone", model.AuditEntityUser, user.ID, nil))
	return nil
}

func (s *Service) VerifyIdentity(ctx context.Context, actor model.Actor, req *model.VerifyIdentityRequest) error {
	if !actor.IsAdmin() {
		return service.ErrNotAdmin
	}
	if err := s.repo.SetIdentityVerified(ctx, req.UserID, req.Verified); err != nil {
		return service.Translate(err, "user")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "verify_identity", model.AuditEntityUser, req.UserID,
		model.JSONMap{"verified": req.Verified}))
	return nil
}

// Get is used by other services to resolve contact details.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "user")
	}
	return user, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
