package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/security"
)

var (
	ErrInvalidCredentials = apperrors.NewUnauthorized("invalid credentials")
	ErrAccountLocked      = apperrors.NewUnauthorized("account is locked, please try again later")
	ErrInvalidRefresh     = apperrors.NewUnauthorized("invalid refresh token")
	ErrEmailTaken         = apperrors.NewConflict("email is already registered")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	auditor  audit.Auditor
	now      func() time.Time
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService,
	hasher security.PasswordHasher, auditor audit.Auditor) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		auditor:  auditor,
		now:      time.Now,
	}
}

// Register creates a patient or doctor account with a default profile. Admin accounts
// cannot be self-registered.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	role := req.Role
	if role == "" {
		role = model.RolePatient
	}
	if role != model.RolePatient && role != model.RoleDoctor {
		return nil, apperrors.NewBadRequest("role must be patient or doctor", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.NewBadRequest(err.Error(), nil)
		}
		return nil, apperrors.NewInternal(err)
	}

	user := &model.User{
		Base:         model.NewBase(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		Phone:        req.Phone,
		Status:       model.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user, model.DefaultProfile(user.ID)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, service.Translate(err, "user")
	}

	s.auditor.Log(ctx, audit.Action(user.ID, model.AuditActionCreate, model.AuditEntityUser, user.ID,
		model.JSONMap{"role": string(role)}))

	return s.issue(user)
}

// Login checks the password. Five consecutive failures lock the account for 15 minutes.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, service.Translate(err, "user")
	}

	now := s.now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		attempts := user.LoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= maxLoginAttempts {
			until := now.Add(lockoutDuration)
			lockedUntil = &until
			attempts = 0
		}
		if err := s.userRepo.RecordLogin(ctx, user.ID, attempts, lockedUntil, nil); err != nil {
			return nil, service.Translate(err, "user")
		}

		s.auditor.Log(ctx, audit.Action(user.ID, model.AuditActionFailedLogin, model.AuditEntityUser, user.ID,
			model.JSONMap{"locked": lockedUntil != nil}))
		if lockedUntil != nil {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID, 0, nil, &now); err != nil {
		return nil, service.Translate(err, "user")
	}
	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	s.auditor.Log(ctx, audit.Action(user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil))
	return s.issue(user)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.AuthResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, service.Translate(err, "user")
	}
	return s.issue(user)
}

func (s *Service) issue(user *model.User) (*model.AuthResponse, error) {
	pair, err := s.jwtSvc.GeneratePair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &model.AuthResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}
