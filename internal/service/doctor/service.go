package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

const (
	directoryTTL     = 5 * time.Minute
	directoryCleanup = 10 * time.Minute
)

var (
	ErrAlreadyRegistered = apperrors.NewConflict("doctor profile already exists")
	ErrAlreadyReviewed   = apperrors.NewConflict("appointment has already been reviewed")
	ErrNotReviewable     = apperrors.NewForbidden("you can only review your own completed appointments")
	ErrInvalidWindow     = apperrors.NewBadRequest("end_time must be after start_time", nil)
	ErrInvalidBreak      = apperrors.NewBadRequest("break times must fall inside the availability window", nil)
	ErrInvalidDate       = apperrors.NewBadRequest("date must be YYYY-MM-DD", nil)
	ErrDayTaken          = apperrors.NewConflict("availability for this day already exists")
)

type DoctorServicer interface {
	Register(ctx context.Context, actor model.Actor, req *model.RegisterDoctorRequest) (*model.Doctor, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Doctor, error)
	GetProfile(ctx context.Context, actor model.Actor) (*model.Doctor, error)
	UpdateProfile(ctx context.Context, actor model.Actor, req *model.UpdateDoctorRequest) (*model.Doctor, error)
	Directory(ctx context.Context, filter *model.DoctorFilter) ([]*model.Doctor, int, error)
	SetKYCStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.KYCStatus) (*model.Doctor, error)

	ListAvailability(ctx context.Context, actor model.Actor) ([]*model.DoctorAvailability, error)
	CreateAvailability(ctx context.Context, actor model.Actor, req *model.AvailabilityRequest) (*model.DoctorAvailability, error)
	UpdateAvailability(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AvailabilityRequest) (*model.DoctorAvailability, error)
	DeleteAvailability(ctx context.Context, actor model.Actor, id uuid.UUID) error
	OpenSlots(ctx context.Context, id uuid.UUID, date string) ([]*model.ScheduleSlot, error)

	ListReviews(ctx context.Context, id uuid.UUID, p model.Pagination) ([]*model.DoctorReview, int, error)
	CreateReview(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.ReviewRequest) (*model.DoctorReview, error)
}

type directoryPage struct {
	doctors []*model.Doctor
	total   int
}

type Service struct {
	repo      repository.DoctorRepository
	slotRepo  repository.SlotRepository
	apptRepo  repository.AppointmentRepository
	auditor   audit.Auditor
	directory *cache.Cache
	now       func() time.Time
}

var _ DoctorServicer = (*Service)(nil)

func NewService(repo repository.DoctorRepository, slotRepo repository.SlotRepository,
	apptRepo repository.AppointmentRepository, auditor audit.Auditor) *Service {
	return &Service{
		repo:      repo,
		slotRepo:  slotRepo,
		apptRepo:  apptRepo,
		auditor:   auditor,
		directory: cache.New(directoryTTL, directoryCleanup),
		now:       time.Now,
	}
}

// Register creates the doctor profile of a doctor-role account. New profiles start
// with KYC pending and are hidden from the directory until verified.
func (s *Service) Register(ctx context.Context, actor model.Actor, req *model.RegisterDoctorRequest) (*model.Doctor, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	if _, err := s.repo.GetByUserID(ctx, actor.UserID); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, service.Translate(err, "doctor")
	}
	if req.ConsultationFee.IsNegative() {
		return nil, apperrors.NewBadRequest("consultation_fee cannot be negative", nil)
	}

	maxPatients := req.MaxPatientsPerDay
	if maxPatients == 0 {
		maxPatients = model.DefaultMaxPatientsPerDay
	}
	doc := &model.Doctor{
		Base:                       model.NewBase(),
		UserID:                     actor.UserID,
		RegistrationNumber:         req.RegistrationNumber,
		YearsOfExperience:          req.YearsOfExperience,
		Specialties:                req.Specialties,
		Bio:                        req.Bio,
		ClinicName:                 req.ClinicName,
		ClinicAddress:              req.ClinicAddress,
		ConsultationFee:            req.ConsultationFee,
		KYCStatus:                  model.KYCPending,
		IsAvailableForConsultation: true,
		MaxPatientsPerDay:          maxPatients,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, service.Translate(err, "doctor")
	}

	s.invalidate()
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityDoctor, doc.ID, nil))
	return doc, nil
}

// Get returns a directory entry. Unlisted doctors are only visible to themselves and admins.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Doctor, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "doctor")
	}
	if !doc.Listed() && !actor.IsAdmin() && actor.UserID != doc.UserID {
		return nil, apperrors.NewNotFound("doctor", nil)
	}
	return doc, nil
}

func (s *Service) GetProfile(ctx context.Context, actor model.Actor) (*model.Doctor, error) {
	return s.self(ctx, actor)
}

func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, req *model.UpdateDoctorRequest) (*model.Doctor, error) {
	doc, err := s.self(ctx, actor)
	if err != nil {
		return nil, err
	}

	if req.YearsOfExperience != nil {
		doc.YearsOfExperience = *req.YearsOfExperience
	}
	if len(req.Specialties) > 0 {
		doc.Specialties = req.Specialties
	}
	if req.Bio != nil {
		doc.Bio = *req.Bio
	}
	if req.ClinicName != nil {
		doc.ClinicName = *req.ClinicName
	}
	if req.ClinicAddress != nil {
		doc.ClinicAddress = *req.ClinicAddress
	}
	if req.ConsultationFee != nil {
		if req.ConsultationFee.IsNegative() {
			return nil, apperrors.NewBadRequest("consultation_fee cannot be negative", nil)
		}
		doc.ConsultationFee = *req.ConsultationFee
	}
	if req.IsAvailableForConsultation != nil {
		doc.IsAvailableForConsultation = *req.IsAvailableForConsultation
	}
	if req.MaxPatientsPerDay != nil {
		doc.MaxPatientsPerDay = *req.MaxPatientsPerDay
	}
	doc.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, service.Translate(err, "doctor")
	}
	s.invalidate()
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityDoctor, doc.ID, nil))
	return doc, nil
}

// Directory lists verified, available doctors. Pages are cached for five minutes and
// dropped on any doctor write.
func (s *Service) Directory(ctx context.Context, filter *model.DoctorFilter) ([]*model.Doctor, int, error) {
	key := directoryKey(filter)
	if v, ok := s.directory.Get(key); ok {
		p := v.(directoryPage)
		return p.doctors, p.total, nil
	}

	doctors, total, err := s.repo.ListDirectory(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "doctor")
	}
	s.directory.SetDefault(key, directoryPage{doctors: doctors, total: total})
	return doctors, total, nil
}

func (s *Service) SetKYCStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.KYCStatus) (*model.Doctor, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrNotAdmin
	}
	if err := s.repo.SetKYCStatus(ctx, id, status); err != nil {
		return nil, service.Translate(err, "doctor")
	}
	s.invalidate()
	s.auditor.Log(ctx, audit.Action(actor.UserID, "kyc_"+string(status), model.AuditEntityDoctor, id, nil))

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "doctor")
	}
	return doc, nil
}

func (s *Service) ListAvailability(ctx context.Context, actor model.Actor) ([]*model.DoctorAvailability, error) {
	doc, err := s.self(ctx, actor)
	if err != nil {
		return nil, err
	}
	windows, err := s.repo.ListAvailability(ctx, doc.ID)
	if err != nil {
		return nil, service.Translate(err, "availability")
	}
	return windows, nil
}

func (s *Service) CreateAvailability(ctx context.Context, actor model.Actor, req *model.AvailabilityRequest) (*model.DoctorAvailability, error) {
	doc, err := s.self(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(req); err != nil {
		return nil, err
	}

	a := &model.DoctorAvailability{
		Base:        model.NewBase(),
		DoctorID:    doc.ID,
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
		BreakTimes:  model.BreakTimes(req.BreakTimes),
	}
	if err := s.repo.CreateAvailability(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDayTaken
		}
		return nil, service.Translate(err, "availability")
	}
	return a, nil
}

func (s *Service) UpdateAvailability(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AvailabilityRequest) (*model.DoctorAvailability, error) {
	a, err := s.ownedAvailability(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(req); err != nil {
		return nil, err
	}

	a.DayOfWeek = req.DayOfWeek
	a.StartTime = req.StartTime
	a.EndTime = req.EndTime
	if req.IsAvailable != nil {
		a.IsAvailable = *req.IsAvailable
	}
	a.BreakTimes = model.BreakTimes(req.BreakTimes)
	a.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateAvailability(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDayTaken
		}
		return nil, service.Translate(err, "availability")
	}
	return a, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if _, err := s.ownedAvailability(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAvailability(ctx, id); err != nil {
		return service.Translate(err, "availability")
	}
	return nil
}

// OpenSlots returns the doctor's open slots on date that have not started yet.
func (s *Service) OpenSlots(ctx context.Context, id uuid.UUID, date string) ([]*model.ScheduleSlot, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "doctor")
	}

	from := day.UTC()
	if now := s.now().UTC(); now.After(from) {
		from = now
	}
	to := day.UTC().Add(24 * time.Hour)
	slots, _, err := s.slotRepo.List(ctx, &model.SlotFilter{
		DoctorID:   &doc.UserID,
		Status:     model.SlotStatusOpen,
		From:       &from,
		To:         &to,
		Pagination: model.Pagination{Page: 1, PageSize: 200},
	})
	if err != nil {
		return nil, service.Translate(err, "slot")
	}
	return slots, nil
}

func (s *Service) ListReviews(ctx context.Context, id uuid.UUID, p model.Pagination) ([]*model.DoctorReview, int, error) {
	reviews, total, err := s.repo.ListReviews(ctx, id, p)
	if err != nil {
		return nil, 0, service.Translate(err, "review")
	}
	for _, r := range reviews {
		if r.IsAnonymous {
			r.PatientName = ""
			r.PatientID = uuid.Nil
		}
	}
	return reviews, total, nil
}

// CreateReview lets a patient rate a completed appointment of theirs, once.
func (s *Service) CreateReview(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.ReviewRequest) (*model.DoctorReview, error) {
	if !actor.IsPatient() {
		return nil, service.ErrNotPatient
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "doctor")
	}

	ok, err := s.apptRepo.HasCompleted(ctx, actor.UserID, doc.UserID, req.AppointmentID)
	if err != nil {
		return nil, service.Translate(err, "appointment")
	}
	if !ok {
		return nil, ErrNotReviewable
	}

	review := &model.DoctorReview{
		Base:                model.NewBase(),
		DoctorID:            doc.ID,
		PatientID:           actor.UserID,
		AppointmentID:       req.AppointmentID,
		Rating:              req.Rating,
		CommunicationRating: req.CommunicationRating,
		TreatmentRating:     req.TreatmentRating,
		PunctualityRating:   req.PunctualityRating,
		Comment:             req.Comment,
		IsAnonymous:         req.IsAnonymous,
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyReviewed
		}
		return nil, service.Translate(err, "review")
	}

	s.invalidate()
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, "doctor_review", review.ID,
		model.JSONMap{"doctor_id": doc.ID.String(), "rating": req.Rating}))
	return review, nil
}

// self loads the caller's own doctor profile.
func (s *Service) self(ctx context.Context, actor model.Actor) (*model.Doctor, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	doc, err := s.repo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrNoDoctorInfo
		}
		return nil, service.Translate(err, "doctor")
	}
	return doc, nil
}

func (s *Service) ownedAvailability(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorAvailability, error) {
	doc, err := s.self(ctx, actor)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetAvailability(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "availability")
	}
	if a.DoctorID != doc.ID {
		return nil, service.ErrPermission
	}
	return a, nil
}

func (s *Service) invalidate() {
	s.directory.Flush()
}

func directoryKey(f *model.DoctorFilter) string {
	maxFee := ""
	if f.MaxFee != nil {
		maxFee = f.MaxFee.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d", f.Specialty, maxFee, f.Search, f.Ordering, f.Page, f.PageSize)
}

func validateWindow(req *model.AvailabilityRequest) error {
	start, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return apperrors.NewBadRequest("start_time must be HH:MM", err)
	}
	end, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		return apperrors.NewBadRequest("end_time must be HH:MM", err)
	}
	if !end.After(start) {
		return ErrInvalidWindow
	}
	for _, b := range req.BreakTimes {
		bs, err1 := time.Parse("15:04", b.Start)
		be, err2 := time.Parse("15:04", b.End)
		if err1 != nil || err2 != nil || !be.After(bs) || bs.Before(start) || be.After(end) {
			return ErrInvalidBreak
		}
	}
	return nil
}
