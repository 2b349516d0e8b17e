package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/repository/mocks"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/internal/sms"
)

type stubVerifier struct {
	started  []string
	approved bool
	err      error
}

func (v *stubVerifier) StartVerification(_ context.Context, phone string) error {
	v.started = append(v.started, phone)
	return v.err
}

func (v *stubVerifier) CheckVerification(context.Context, string, string) (bool, error) {
	return v.approved, v.err
}

func strPtr(s string) *string { return &s }

func newUser(phone *string) *model.User {
	return &model.User{Base: model.NewBase(), Email: "p@example.com", Role: model.RolePatient, Phone: phone}
}

func TestUpdateProfileResetsPhoneVerification(t *testing.T) {
	repo := new(mocks.UserRepository)
	rec := &audit.Recorder{}
	svc := NewService(repo, &stubVerifier{}, rec)

	u := newUser(strPtr("+15550000001"))
	u.IsPhoneVerified = true
	actor := model.Actor{UserID: u.ID, Role: model.RolePatient}

	repo.On("Get", mock.Anything, u.ID).Return(u, nil)
	repo.On("GetProfile", mock.Anything, u.ID).Return(nil, repository.ErrNotFound)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(x *model.User) bool {
		return !x.IsPhoneVerified && *x.Phone == "+15550000002" && x.City == "Pune"
	})).Return(nil)
	repo.On("UpdateProfile", mock.Anything, mock.MatchedBy(func(p *model.UserProfile) bool {
		return p.UserID == u.ID && p.BloodType == "O+" && p.Timezone == "UTC"
	})).Return(nil)

	out, err := svc.UpdateProfile(context.Background(), actor, &model.UpdateProfileRequest{
		Phone:     strPtr("+15550000002"),
		City:      strPtr("Pune"),
		BloodType: strPtr("O+"),
	})
	require.NoError(t, err)
	assert.Equal(t, "O+", out.Profile.BloodType)
	assert.Equal(t, []string{model.AuditActionUpdate}, rec.Actions())
	repo.AssertExpectations(t)
}

func TestListRequiresAdmin(t *testing.T) {
	svc := NewService(new(mocks.UserRepository), &stubVerifier{}, audit.Nop{})
	_, _, err := svc.List(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}, &model.UserFilter{})
	assert.ErrorIs(t, err, service.ErrNotAdmin)
}

func TestPhoneVerification(t *testing.T) {
	t.Run("no phone on file", func(t *testing.T) {
		repo := new(mocks.UserRepository)
		svc := NewService(repo, &stubVerifier{}, audit.Nop{})
		u := newUser(nil)
		repo.On("Get", mock.Anything, u.ID).Return(u, nil)

		err := svc.StartPhoneVerification(context.Background(), model.Actor{UserID: u.ID})
		assert.ErrorIs(t, err, ErrNoPhone)
	})

	t.Run("sends code", func(t *testing.T) {
		repo := new(mocks.UserRepository)
		v := &stubVerifier{}
		svc := NewService(repo, v, audit.Nop{})
		u := newUser(strPtr("+15550000001"))
		repo.On("Get", mock.Anything, u.ID).Return(u, nil)

		require.NoError(t, svc.StartPhoneVerification(context.Background(), model.Actor{UserID: u.ID}))
		assert.Equal(t, []string{"+15550000001"}, v.started)
	})

	t.Run("twilio missing", func(t *testing.T) {
		repo := new(mocks.UserRepository)
		svc := NewService(repo, &stubVerifier{err: sms.ErrNotConfigured}, audit.Nop{})
		u := newUser(strPtr("+15550000001"))
		repo.On("Get", mock.Anything, u.ID).Return(u, nil)

		err := svc.StartPhoneVerification(context.Background(), model.Actor{UserID: u.ID})
		assert.ErrorIs(t, err, ErrSMSNotConfigured)
	})

	t.Run("rejected code", func(t *testing.T) {
		repo := new(mocks.UserRepository)
		svc := NewService(repo, &stubVerifier{approved: false}, audit.Nop{})
		u := newUser(strPtr("+15550000001"))
		repo.On("Get", mock.Anything, u.ID).Return(u, nil)

		err := svc.CheckPhoneVerification(context.Background(), model.Actor{UserID: u.ID}, "123456")
		assert.ErrorIs(t, err, ErrInvalidCode)
		repo.AssertNotCalled(t, "SetPhoneVerified")
	})

	t.Run("approved code", func(t *testing.T) {
		repo := new(mocks.UserRepository)
		svc := NewService(repo, &stubVerifier{approved: true}, audit.Nop{})
		u := newUser(strPtr("+15550000001"))
		repo.On("Get", mock.Anything, u.ID).Return(u, nil)
		repo.On("SetPhoneVerified", mock.Anything, u.ID, true).Return(nil)

		require.NoError(t, svc.CheckPhoneVerification(context.Background(), model.Actor{UserID: u.ID}, "123456"))
		repo.AssertExpectations(t)
	})
}

func TestVerifyIdentity(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := NewService(repo, &stubVerifier{}, audit.Nop{})
	target := uuid.New()

	err := svc.VerifyIdentity(context.Background(), model.Actor{Role: model.RolePatient},
		&model.VerifyIdentityRequest{UserID: target, Verified: true})
	assert.ErrorIs(t, err, service.ErrNotAdmin)

	repo.On("SetIdentityVerified", mock.Anything, target, true).Return(nil)
	err = svc.VerifyIdentity(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleAdmin},
		&model.VerifyIdentityRequest{UserID: target, Verified: true})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
