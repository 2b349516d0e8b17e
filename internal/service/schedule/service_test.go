package schedule

import (
	"context"
	"net/http"
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

var fixedNow = time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC) // a Monday

func newService() (*Service, *mocks.SlotRepository, *mocks.DoctorRepository) {
	slots := new(mocks.SlotRepository)
	doctors := new(mocks.DoctorRepository)
	svc := NewService(slots, doctors, audit.Nop{})
	svc.now = func() time.Time { return fixedNow }
	return svc, slots, doctors
}

func doctorActor(doctors *mocks.DoctorRepository) (model.Actor, *model.Doctor) {
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	doc := &model.Doctor{Base: model.NewBase(), UserID: actor.UserID}
	doctors.On("GetByUserID", mock.Anything, actor.UserID).Return(doc, nil)
	return actor, doc
}

func TestCreateSlot(t *testing.T) {
	t.Run("in the past", func(t *testing.T) {
		svc, _, doctors := newService()
		actor, _ := doctorActor(doctors)
		_, err := svc.CreateSlot(context.Background(), actor, &model.CreateSlotRequest{
			StartTime: fixedNow.Add(-time.Hour), EndTime: fixedNow,
		})
		assert.ErrorIs(t, err, ErrSlotInPast)
	})

	t.Run("derives duration", func(t *testing.T) {
		svc, slots, doctors := newService()
		actor, _ := doctorActor(doctors)
		slots.On("Create", mock.Anything, mock.MatchedBy(func(s *model.ScheduleSlot) bool {
			return s.DurationMinutes == 45 && s.Status == model.SlotStatusOpen && s.DoctorID == actor.UserID
		})).Return(nil)

		slot, err := svc.CreateSlot(context.Background(), actor, &model.CreateSlotRequest{
			StartTime: fixedNow.Add(time.Hour), EndTime: fixedNow.Add(105 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, 45, slot.DurationMinutes)
	})

	t.Run("duplicate start", func(t *testing.T) {
		svc, slots, doctors := newService()
		actor, _ := doctorActor(doctors)
		slots.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

		_, err := svc.CreateSlot(context.Background(), actor, &model.CreateSlotRequest{
			StartTime: fixedNow.Add(time.Hour), EndTime: fixedNow.Add(2 * time.Hour),
		})
		assert.ErrorIs(t, err, ErrSlotExists)
	})

	t.Run("doctor without profile", func(t *testing.T) {
		svc, _, doctors := newService()
		actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
		doctors.On("GetByUserID", mock.Anything, actor.UserID).Return(nil, repository.ErrNotFound)

		_, err := svc.CreateSlot(context.Background(), actor, &model.CreateSlotRequest{})
		assert.ErrorIs(t, err, service.ErrNoDoctorInfo)
	})
}

func TestGenerateSkipsBreaksAndPast(t *testing.T) {
	doctorID := uuid.New()
	windows := []*model.DoctorAvailability{{
		DayOfWeek:   int(time.Monday),
		StartTime:   "07:00",
		EndTime:     "11:00",
		IsAvailable: true,
		BreakTimes:  model.BreakTimes{{Start: "09:30", End: "10:00"}},
	}, {
		DayOfWeek:   int(time.Tuesday),
		StartTime:   "09:00",
		EndTime:     "10:00",
		IsAvailable: false,
	}}
	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

	slots := Generate(doctorID, windows, day, day.AddDate(0, 0, 1), 30*time.Minute, fixedNow)

	var starts []string
	for _, s := range slots {
		starts = append(starts, s.StartTime.Format("15:04"))
		assert.Equal(t, 30, s.DurationMinutes)
		assert.Equal(t, doctorID, s.DoctorID)
	}
	// 07:00-08:00 are not after now, 09:30 falls in the break, tuesday is switched off
	assert.Equal(t, []string{"08:30", "09:00", "10:00", "10:30"}, starts)
}

func TestGenerateSlots(t *testing.T) {
	t.Run("range too long", func(t *testing.T) {
		svc, _, doctors := newService()
		actor, _ := doctorActor(doctors)
		_, err := svc.GenerateSlots(context.Background(), actor, &model.BulkSlotRequest{From: "2030-03-01", To: "2030-05-01"})
		assert.ErrorIs(t, err, ErrBulkRange)
	})

	t.Run("inserts generated slots", func(t *testing.T) {
		svc, slots, doctors := newService()
		actor, doc := doctorActor(doctors)
		doctors.On("ListAvailability", mock.Anything, doc.ID).Return([]*model.DoctorAvailability{{
			DayOfWeek: int(time.Tuesday), StartTime: "09:00", EndTime: "10:00", IsAvailable: true,
		}}, nil)
		slots.On("CreateBatch", mock.Anything, mock.MatchedBy(func(batch []*model.ScheduleSlot) bool {
			return len(batch) == 2
		})).Return(2, nil)

		n, err := svc.GenerateSlots(context.Background(), actor, &model.BulkSlotRequest{From: "2030-03-05", To: "2030-03-05"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestBlockAndUnblock(t *testing.T) {
	svc, slots, _ := newService()
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	slot := &model.ScheduleSlot{Base: model.NewBase(), DoctorID: actor.UserID, Status: model.SlotStatusOpen}
	slots.On("Get", mock.Anything, slot.ID).Return(slot, nil)
	slots.On("SetStatus", mock.Anything, slot.ID, model.SlotStatusOpen, model.SlotStatusBlocked).Return(nil)

	got, err := svc.BlockSlot(context.Background(), actor, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBlocked, got.Status)

	booked := &model.ScheduleSlot{Base: model.NewBase(), DoctorID: actor.UserID, Status: model.SlotStatusBooked}
	slots.On("Get", mock.Anything, booked.ID).Return(booked, nil)
	_, err = svc.UnblockSlot(context.Background(), actor, booked.ID)
	assert.ErrorIs(t, err, ErrNotBlocked)
	_, err = svc.BlockSlot(context.Background(), actor, booked.ID)
	assert.ErrorIs(t, err, ErrNotOpen)

	other := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	_, err = svc.BlockSlot(context.Background(), other, slot.ID)
	assert.ErrorIs(t, err, service.ErrPermission)
}

func TestDeleteSlot(t *testing.T) {
	svc, slots, _ := newService()
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}

	booked := &model.ScheduleSlot{Base: model.NewBase(), DoctorID: actor.UserID, Status: model.SlotStatusBooked}
	slots.On("Get", mock.Anything, booked.ID).Return(booked, nil)
	assert.ErrorIs(t, svc.DeleteSlot(context.Background(), actor, booked.ID), ErrSlotBooked)

	open := &model.ScheduleSlot{Base: model.NewBase(), DoctorID: actor.UserID, Status: model.SlotStatusOpen}
	slots.On("Get", mock.Anything, open.ID).Return(open, nil)
	slots.On("Delete", mock.Anything, open.ID).Return(repository.ErrStaleState)
	assert.ErrorIs(t, svc.DeleteSlot(context.Background(), actor, open.ID), ErrSlotBooked)

	reopened := &model.ScheduleSlot{Base: model.NewBase(), DoctorID: actor.UserID, Status: model.SlotStatusOpen}
	slots.On("Get", mock.Anything, reopened.ID).Return(reopened, nil)
	slots.On("Delete", mock.Anything, reopened.ID).Return(repository.ErrInUse)
	err := svc.DeleteSlot(context.Background(), actor, reopened.ID)
	assert.ErrorIs(t, err, ErrSlotHistory)
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
}

func TestListSlotsOnlyFutureOpen(t *testing.T) {
	svc, slots, _ := newService()
	slots.On("List", mock.Anything, mock.MatchedBy(func(f *model.SlotFilter) bool {
		return f.Status == model.SlotStatusOpen && f.From.Equal(fixedNow)
	})).Return([]*model.ScheduleSlot{}, 0, nil)

	past := fixedNow.Add(-48 * time.Hour)
	_, _, err := svc.ListSlots(context.Background(), &model.SlotFilter{From: &past})
	require.NoError(t, err)
	slots.AssertExpectations(t)
}
