package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

// maxBulkDays bounds one bulk generation request.
const maxBulkDays = 31

var (
	ErrSlotInPast     = apperrors.NewBadRequest("slot must start in the future", nil)
	ErrSlotOrder      = apperrors.NewBadRequest("end_time must be after start_time", nil)
	ErrSlotExists     = apperrors.NewConflict("a slot already starts at this time")
	ErrSlotBooked     = apperrors.NewConflict("booked slots cannot be changed")
	ErrSlotHistory    = apperrors.NewConflict("slot has booking history, block it instead")
	ErrNotOpen        = apperrors.NewBadRequest("only open slots can be blocked", nil)
	ErrNotBlocked     = apperrors.NewBadRequest("only blocked slots can be unblocked", nil)
	ErrBulkRange      = apperrors.NewBadRequest("to must be on or after from and span at most 31 days", nil)
	ErrNoAvailability = apperrors.NewBadRequest("no availability windows configured", nil)
)

type ScheduleServicer interface {
	CreateSlot(ctx context.Context, actor model.Actor, req *model.CreateSlotRequest) (*model.ScheduleSlot, error)
	GenerateSlots(ctx context.Context, actor model.Actor, req *model.BulkSlotRequest) (int, error)
	ListSlots(ctx context.Context, filter *model.SlotFilter) ([]*model.ScheduleSlot, int, error)
	BlockSlot(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ScheduleSlot, error)
	UnblockSlot(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ScheduleSlot, error)
	DeleteSlot(ctx context.Context, actor model.Actor, id uuid.UUID) error
}

type Service struct {
	slots   repository.SlotRepository
	doctors repository.DoctorRepository
	auditor audit.Auditor
	now     func() time.Time
}

var _ ScheduleServicer = (*Service)(nil)

func NewService(slots repository.SlotRepository, doctors repository.DoctorRepository, auditor audit.Auditor) *Service {
	return &Service{
		slots:   slots,
		doctors: doctors,
		auditor: auditor,
		now:     time.Now,
	}
}

// CreateSlot opens a single slot for the calling doctor.
func (s *Service) CreateSlot(ctx context.Context, actor model.Actor, req *model.CreateSlotRequest) (*model.ScheduleSlot, error) {
	if _, err := s.doctor(ctx, actor); err != nil {
		return nil, err
	}
	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	if !start.After(s.now()) {
		return nil, ErrSlotInPast
	}
	if !end.After(start) {
		return nil, ErrSlotOrder
	}

	slot := newSlot(actor.UserID, start, end)
	slot.Notes = req.Notes
	if err := s.slots.Create(ctx, slot); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrSlotExists
		}
		return nil, service.Translate(err, "slot")
	}

	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntitySlot, slot.ID, nil))
	return slot, nil
}

// GenerateSlots fills [from, to] with slots cut from the doctor's weekly availability.
// Breaks, past starts and starts the doctor already has are skipped. Returns the number
// of slots created.
func (s *Service) GenerateSlots(ctx context.Context, actor model.Actor, req *model.BulkSlotRequest) (int, error) {
	doc, err := s.doctor(ctx, actor)
	if err != nil {
		return 0, err
	}
	from, err1 := time.Parse("2006-01-02", req.From)
	to, err2 := time.Parse("2006-01-02", req.To)
	if err1 != nil || err2 != nil || to.Before(from) || to.Sub(from) > (maxBulkDays-1)*24*time.Hour {
		return 0, ErrBulkRange
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = model.DefaultSlotMinutes
	}

	windows, err := s.doctors.ListAvailability(ctx, doc.ID)
	if err != nil {
		return 0, service.Translate(err, "availability")
	}
	if len(windows) == 0 {
		return 0, ErrNoAvailability
	}

	slots := Generate(actor.UserID, windows, from, to, time.Duration(duration)*time.Minute, s.now().UTC())
	created, err := s.slots.CreateBatch(ctx, slots)
	if err != nil {
		return 0, service.Translate(err, "slot")
	}

	s.auditor.Log(ctx, audit.Entry{
		UserID:     &actor.UserID,
		Action:     "generate",
		EntityType: model.AuditEntitySlot,
		Metadata:   model.JSONMap{"from": req.From, "to": req.To, "created": created},
	})
	return created, nil
}

// ListSlots returns open slots that have not started yet.
func (s *Service) ListSlots(ctx context.Context, filter *model.SlotFilter) ([]*model.ScheduleSlot, int, error) {
	now := s.now().UTC()
	filter.Status = model.SlotStatusOpen
	if filter.From == nil || filter.From.Before(now) {
		filter.From = &now
	}
	slots, total, err := s.slots.List(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "slot")
	}
	return slots, total, nil
}

func (s *Service) BlockSlot(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ScheduleSlot, error) {
	return s.move(ctx, actor, id, model.SlotStatusOpen, model.SlotStatusBlocked, ErrNotOpen)
}

func (s *Service) UnblockSlot(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ScheduleSlot, error) {
	return s.move(ctx, actor, id, model.SlotStatusBlocked, model.SlotStatusOpen, ErrNotBlocked)
}

func (s *Service) DeleteSlot(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	slot, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if slot.Status == model.SlotStatusBooked {
		return ErrSlotBooked
	}
	if err := s.slots.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return ErrSlotBooked
		case errors.Is(err, repository.ErrInUse):
			return ErrSlotHistory
		}
		return service.Translate(err, "slot")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionDelete, model.AuditEntitySlot, id, nil))
	return nil
}

func (s *Service) move(ctx context.Context, actor model.Actor, id uuid.UUID, from, to model.SlotStatus, wrongState error) (*model.ScheduleSlot, error) {
	slot, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if slot.Status != from {
		return nil, wrongState
	}
	if err := s.slots.SetStatus(ctx, id, from, to); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, wrongState
		}
		return nil, service.Translate(err, "slot")
	}
	slot.Status = to
	slot.UpdatedAt = s.now().UTC()

	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntitySlot, id,
		model.JSONMap{"status": string(to)}))
	return slot, nil
}

func (s *Service) owned(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ScheduleSlot, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	slot, err := s.slots.Get(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "slot")
	}
	if slot.DoctorID != actor.UserID {
		return nil, service.ErrPermission
	}
	return slot, nil
}

func (s *Service) doctor(ctx context.Context, actor model.Actor) (*model.Doctor, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	doc, err := s.doctors.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrNoDoctorInfo
		}
		return nil, service.Translate(err, "doctor")
	}
	return doc, nil
}

func newSlot(doctorUserID uuid.UUID, start, end time.Time) *model.ScheduleSlot {
	return &model.ScheduleSlot{
		Base:            model.NewBase(),
		DoctorID:        doctorUserID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Status:          model.SlotStatusOpen,
	}
}

// Generate cuts availability windows into back-to-back slots for every day in
// [from, to]. Window times are wall-clock UTC. Slots overlapping a break, or
// starting at or before now, are left out.
func Generate(doctorUserID uuid.UUID, windows []*model.DoctorAvailability, from, to time.Time,
	length time.Duration, now time.Time) []*model.ScheduleSlot {
	byDay := make(map[int][]*model.DoctorAvailability)
	for _, w := range windows {
		if w.IsAvailable {
			byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], w)
		}
	}

	var out []*model.ScheduleSlot
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, w := range byDay[int(day.Weekday())] {
			start, ok1 := clock(day, w.StartTime)
			end, ok2 := clock(day, w.EndTime)
			if !ok1 || !ok2 {
				continue
			}
			breaks := make([][2]time.Time, 0, len(w.BreakTimes))
			for _, b := range w.BreakTimes {
				bs, ok1 := clock(day, b.Start)
				be, ok2 := clock(day, b.End)
				if ok1 && ok2 {
					breaks = append(breaks, [2]time.Time{bs, be})
				}
			}

			for t := start; !t.Add(length).After(end); t = t.Add(length) {
				slotEnd := t.Add(length)
				if !t.After(now) || overlaps(t, slotEnd, breaks) {
					continue
				}
				out = append(out, newSlot(doctorUserID, t, slotEnd))
			}
		}
	}
	return out
}

func clock(day time.Time, hhmm string) (time.Time, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), true
}

func overlaps(start, end time.Time, breaks [][2]time.Time) bool {
	for _, b := range breaks {
		if start.Before(b[1]) && end.After(b[0]) {
			return true
		}
	}
	return false
}
