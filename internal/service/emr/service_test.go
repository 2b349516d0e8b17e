package emr

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/repository/mocks"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

var fixedNow = time.Date(2030, 1, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *mocks.EMRRepository
	users   *mocks.UserRepository
	rec     *audit.Recorder
	doctor  model.Actor
	patient model.Actor
}

func newFixture() *fixture {
	f := &fixture{
		repo:    new(mocks.EMRRepository),
		users:   new(mocks.UserRepository),
		rec:     &audit.Recorder{},
		doctor:  model.Actor{UserID: uuid.New(), Role: model.RoleDoctor},
		patient: model.Actor{UserID: uuid.New(), Role: model.RolePatient},
	}
	f.svc = NewService(f.repo, f.users, f.rec)
	f.svc.now = func() time.Time { return fixedNow }
	f.users.On("Get", mock.Anything, f.patient.UserID).
		Return(&model.User{Base: model.Base{ID: f.patient.UserID}, Role: model.RolePatient}, nil)
	return f
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestCreateRecord(t *testing.T) {
	t.Run("doctor writes into a patient chart", func(t *testing.T) {
		f := newFixture()
		f.repo.On("CreateRecord", mock.Anything, mock.MatchedBy(func(r *model.MedicalRecord) bool {
			return r.DoctorID == f.doctor.UserID && r.PatientID == f.patient.UserID && r.IsActive
		})).Return(nil)

		rec, err := f.svc.CreateRecord(context.Background(), f.doctor, &model.MedicalRecordRequest{
			PatientID: f.patient.UserID, ChiefComplaint: "headache",
		})
		require.NoError(t, err)
		assert.Equal(t, "headache", rec.ChiefComplaint)
		assert.Equal(t, []string{model.AuditActionCreate}, f.rec.Actions())
	})

	t.Run("patients cannot author", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateRecord(context.Background(), f.patient, &model.MedicalRecordRequest{PatientID: f.patient.UserID})
		assert.ErrorIs(t, err, service.ErrNotDoctor)
	})

	t.Run("target must be a patient", func(t *testing.T) {
		f := newFixture()
		other := uuid.New()
		f.users.On("Get", mock.Anything, other).Return(&model.User{Role: model.RoleDoctor}, nil)
		_, err := f.svc.CreateRecord(context.Background(), f.doctor, &model.MedicalRecordRequest{PatientID: other})
		assert.ErrorIs(t, err, ErrNotAPatient)
	})
}

func TestRecordVisibility(t *testing.T) {
	f := newFixture()
	rec := &model.MedicalRecord{Base: model.NewBase(), PatientID: f.patient.UserID, DoctorID: f.doctor.UserID}
	f.repo.On("GetRecord", mock.Anything, rec.ID).Return(rec, nil)

	for name, actor := range map[string]model.Actor{
		"author":  f.doctor,
		"patient": f.patient,
		"admin":   {UserID: uuid.New(), Role: model.RoleAdmin},
	} {
		_, err := f.svc.GetRecord(context.Background(), actor, rec.ID)
		assert.NoError(t, err, name)
	}

	stranger := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	_, err := f.svc.GetRecord(context.Background(), stranger, rec.ID)
	assert.Equal(t, 404, apperrors.StatusOf(err))

	_, err = f.svc.UpdateRecord(context.Background(), stranger, rec.ID, &model.MedicalRecordRequest{})
	assert.ErrorIs(t, err, service.ErrPermission)
}

func TestListScopes(t *testing.T) {
	f := newFixture()
	filter := uuid.New()

	f.repo.On("ListRecords", mock.Anything, mock.MatchedBy(func(s *model.EMRScope) bool {
		return s.PatientID != nil && *s.PatientID == f.patient.UserID && s.DoctorID == nil
	})).Return([]*model.MedicalRecord{}, 0, nil).Once()
	_, _, err := f.svc.ListRecords(context.Background(), f.patient, &filter, model.Pagination{})
	require.NoError(t, err)

	f.repo.On("ListRecords", mock.Anything, mock.MatchedBy(func(s *model.EMRScope) bool {
		return s.DoctorID != nil && *s.DoctorID == f.doctor.UserID && *s.PatientID == filter
	})).Return([]*model.MedicalRecord{}, 0, nil).Once()
	_, _, err = f.svc.ListRecords(context.Background(), f.doctor, &filter, model.Pagination{})
	require.NoError(t, err)

	f.repo.AssertExpectations(t)
}

func TestRefill(t *testing.T) {
	newRx := func(f *fixture) *model.Prescription {
		return &model.Prescription{
			Base: model.NewBase(), PatientID: f.patient.UserID, DoctorID: f.doctor.UserID,
			Status: model.PrescriptionFilled, RefillsAllowed: 2, RefillsUsed: 1,
		}
	}

	t.Run("uses a refill", func(t *testing.T) {
		f := newFixture()
		rx := newRx(f)
		f.repo.On("GetPrescription", mock.Anything, rx.ID).Return(rx, nil)
		after := *rx
		after.RefillsUsed = 2
		f.repo.On("UseRefill", mock.Anything, rx.ID).Return(&after, nil)

		got, err := f.svc.Refill(context.Background(), f.patient, rx.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RefillsUsed)
		assert.Equal(t, []string{"refill"}, f.rec.Actions())
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture()
		rx := newRx(f)
		past := fixedNow.Add(-time.Hour)
		rx.ExpiryDate = &past
		f.repo.On("GetPrescription", mock.Anything, rx.ID).Return(rx, nil)

		_, err := f.svc.Refill(context.Background(), f.patient, rx.ID)
		assert.ErrorIs(t, err, ErrPrescriptionDead)
	})

	t.Run("exhausted", func(t *testing.T) {
		f := newFixture()
		rx := newRx(f)
		rx.RefillsUsed = 2
		f.repo.On("GetPrescription", mock.Anything, rx.ID).Return(rx, nil)

		_, err := f.svc.Refill(context.Background(), f.patient, rx.ID)
		assert.ErrorIs(t, err, ErrNoRefills)
	})

	t.Run("lost race for the last refill", func(t *testing.T) {
		f := newFixture()
		rx := newRx(f)
		f.repo.On("GetPrescription", mock.Anything, rx.ID).Return(rx, nil)
		f.repo.On("UseRefill", mock.Anything, rx.ID).Return(nil, repository.ErrStaleState)

		_, err := f.svc.Refill(context.Background(), f.doctor, rx.ID)
		assert.ErrorIs(t, err, ErrNoRefills)
	})

	t.Run("someone else's prescription", func(t *testing.T) {
		f := newFixture()
		rx := newRx(f)
		f.repo.On("GetPrescription", mock.Anything, rx.ID).Return(rx, nil)

		other := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
		_, err := f.svc.Refill(context.Background(), other, rx.ID)
		assert.ErrorIs(t, err, service.ErrPermission)
	})
}

func TestValidateVitals(t *testing.T) {
	tests := []struct {
		name    string
		req     model.VitalSignRequest
		wantErr bool
	}{
		{"empty", model.VitalSignRequest{}, false},
		{"normal", model.VitalSignRequest{BloodPressureSystolic: intp(120), BloodPressureDiastolic: intp(80), HeartRate: intp(70)}, false},
		{"systolic too low", model.VitalSignRequest{BloodPressureSystolic: intp(40)}, true},
		{"heart rate too high", model.VitalSignRequest{HeartRate: intp(301)}, true},
		{"fever in range", model.VitalSignRequest{Temperature: floatp(104.5)}, false},
		{"temperature in celsius", model.VitalSignRequest{Temperature: floatp(37)}, true},
		{"pain above ten", model.VitalSignRequest{PainLevel: intp(11)}, true},
		{"diastolic above systolic", model.VitalSignRequest{BloodPressureSystolic: intp(90), BloodPressureDiastolic: intp(95)}, true},
		{"zero weight", model.VitalSignRequest{Weight: floatp(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVitals(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecordVitalsComputesBMI(t *testing.T) {
	f := newFixture()
	f.repo.On("CreateVitalSign", mock.Anything, mock.Anything).Return(nil)

	v, err := f.svc.RecordVitals(context.Background(), f.doctor, &model.VitalSignRequest{
		PatientID: f.patient.UserID, Weight: floatp(70), Height: floatp(175),
	})
	require.NoError(t, err)
	require.NotNil(t, v.BMI)
	assert.Equal(t, 22.9, *v.BMI)
	assert.Equal(t, fixedNow, v.RecordedAt)
	assert.Equal(t, f.doctor.UserID, v.RecordedBy)
}

func TestCreateAllergyDuplicate(t *testing.T) {
	f := newFixture()
	f.repo.On("CreateAllergy", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

	_, err := f.svc.CreateAllergy(context.Background(), f.doctor, &model.AllergyRequest{
		PatientID: f.patient.UserID, Allergen: "penicillin", Reaction: "rash", Severity: model.SeverityModerate,
	})
	assert.ErrorIs(t, err, ErrAllergyExists)
}

func TestLabResultDates(t *testing.T) {
	f := newFixture()
	before := fixedNow.Add(-48 * time.Hour)
	_, err := f.svc.CreateLabResult(context.Background(), f.doctor, &model.LabResultRequest{
		PatientID: f.patient.UserID, TestName: "CBC", TestDate: fixedNow, ResultDate: &before,
	})
	assert.Equal(t, 400, apperrors.StatusOf(err))
}

func TestPatientSummary(t *testing.T) {
	f := newFixture()
	past := fixedNow.Add(-24 * time.Hour)

	f.repo.On("ListRecords", mock.Anything, mock.Anything).Return([]*model.MedicalRecord{{}, {}, {}, {}, {}, {}}, 6, nil)
	f.repo.On("ListPrescriptions", mock.Anything, mock.Anything).Return([]*model.Prescription{
		{Status: model.PrescriptionPending},
		{Status: model.PrescriptionFilled, ExpiryDate: &past},
		{Status: model.PrescriptionCancelled},
	}, 3, nil)
	f.repo.On("ListLabResults", mock.Anything, mock.Anything).Return([]*model.LabResult{
		{Status: model.LabCompleted}, {Status: model.LabOrdered},
	}, 2, nil)
	latest := &model.VitalSign{HeartRate: intp(72)}
	f.repo.On("ListVitalSigns", mock.Anything, mock.Anything).Return([]*model.VitalSign{latest}, 10, nil)
	f.repo.On("ListAllergies", mock.Anything, mock.Anything).Return([]*model.Allergy{
		{IsActive: true}, {IsActive: false},
	}, 2, nil)

	sum, err := f.svc.PatientSummary(context.Background(), f.patient, f.patient.UserID)
	require.NoError(t, err)
	assert.Len(t, sum.RecentRecords, 5)
	assert.Len(t, sum.ActivePrescriptions, 1)
	assert.Len(t, sum.RecentLabResults, 1)
	assert.Same(t, latest, sum.LatestVitals)
	assert.Len(t, sum.ActiveAllergies, 1)

	_, err = f.svc.PatientSummary(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RolePatient}, f.patient.UserID)
	assert.ErrorIs(t, err, service.ErrPermission)
}

func TestDoctorStatsRequiresDoctor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.DoctorStats(context.Background(), f.patient)
	assert.ErrorIs(t, err, service.ErrNotDoctor)

	f.repo.On("DoctorStats", mock.Anything, f.doctor.UserID).Return(&model.DoctorEMRStats{TotalRecords: 3}, nil)
	stats, err := f.svc.DoctorStats(context.Background(), f.doctor)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
}
