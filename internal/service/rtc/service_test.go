package rtc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/repository/mocks"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var fixedNow = time.Date(2030, 3, 1, 15, 0, 0, 0, time.UTC)

type published struct {
	roomID string
	sender uuid.UUID
	msg    model.WSMessage
}

type stubHub struct {
	err  error
	sent []published
}

func (h *stubHub) Publish(_ context.Context, roomID string, sender uuid.UUID, msg interface{}) error {
	if h.err != nil {
		return h.err
	}
	h.sent = append(h.sent, published{roomID: roomID, sender: sender, msg: msg.(model.WSMessage)})
	return nil
}

type fixture struct {
	svc     *Service
	repo    *mocks.RTCRepository
	appts   *mocks.AppointmentRepository
	hub     *stubHub
	tokens  auth.JWTService
	metrics *metrics.Metrics
	auditor *audit.Recorder
	patient model.Actor
	doctor  model.Actor
}

func newFixture() *fixture {
	f := &fixture{
		repo:    new(mocks.RTCRepository),
		appts:   new(mocks.AppointmentRepository),
		hub:     &stubHub{},
		tokens:  auth.NewJWTService(auth.Config{Secret: "test-secret"}),
		metrics: metrics.NewNoop(),
		auditor: &audit.Recorder{},
		patient: model.Actor{UserID: uuid.New(), Role: model.RolePatient},
		doctor:  model.Actor{UserID: uuid.New(), Role: model.RoleDoctor},
	}
	f.svc = NewService(f.repo, f.appts, f.tokens, f.hub, f.auditor, f.metrics, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) room(status model.RoomStatus) *model.RTCRoom {
	room := &model.RTCRoom{
		ID:        uuid.New(),
		RoomID:    "room_abcdef012345",
		Status:    status,
		CreatedAt: fixedNow.Add(-10 * time.Minute),
		ExpiresAt: fixedNow.Add(time.Hour),
		PatientID: f.patient.UserID,
		DoctorID:  f.doctor.UserID,
	}
	f.repo.On("GetRoom", mock.Anything, room.RoomID).Return(room, nil)
	return room
}

func (f *fixture) appointment(status model.AppointmentStatus, kind model.AppointmentType) *model.Appointment {
	appt := &model.Appointment{
		Base:            model.NewBase(),
		PatientID:       f.patient.UserID,
		DoctorID:        f.doctor.UserID,
		AppointmentType: kind,
		Status:          status,
	}
	f.appts.On("Get", mock.Anything, appt.ID).Return(appt, nil)
	return appt
}

func TestNewRoomID(t *testing.T) {
	id := NewRoomID()
	assert.True(t, strings.HasPrefix(id, "room_"))
	assert.Len(t, id, len("room_")+12)
	assert.NotEqual(t, id, NewRoomID())
}

func TestCreateRoom(t *testing.T) {
	t.Run("new room", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusConfirmed, model.AppointmentTypeVideo)
		var stored *model.RTCRoom
		ret := &model.RTCRoom{}
		f.repo.On("GetRoomByAppointment", mock.Anything, appt.ID).Return(nil, repository.ErrNotFound)
		f.repo.On("CreateRoom", mock.Anything, mock.AnythingOfType("*model.RTCRoom")).
			Run(func(args mock.Arguments) {
				stored = args.Get(1).(*model.RTCRoom)
				*ret = *stored
			}).
			Return(ret, nil)

		room, created, err := f.svc.CreateRoom(context.Background(), f.patient, appt.ID)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, stored.RoomID, room.RoomID)
		assert.Equal(t, []string{model.AuditActionCreate}, f.auditor.Actions())
		assert.Equal(t, model.RoomCreated, stored.Status)
		assert.Equal(t, appt.ID, stored.AppointmentID)
		assert.Equal(t, fixedNow.Add(2*time.Hour), stored.ExpiresAt)
		assert.Equal(t, model.DefaultMaxParticipants, stored.MaxParticipants)
	})

	t.Run("existing room is returned", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusConfirmed, model.AppointmentTypeVideo)
		existing := &model.RTCRoom{ID: uuid.New(), RoomID: "room_existing0001", AppointmentID: appt.ID}
		f.repo.On("GetRoomByAppointment", mock.Anything, appt.ID).Return(existing, nil)

		room, created, err := f.svc.CreateRoom(context.Background(), f.doctor, appt.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing, room)
		assert.Empty(t, f.auditor.Actions())
		f.repo.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything)
	})

	t.Run("concurrent create returns the stored room", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusConfirmed, model.AppointmentTypeVideo)
		winner := &model.RTCRoom{ID: uuid.New(), RoomID: "room_winner000001", AppointmentID: appt.ID}
		f.repo.On("GetRoomByAppointment", mock.Anything, appt.ID).Return(nil, repository.ErrNotFound)
		f.repo.On("CreateRoom", mock.Anything, mock.Anything).Return(winner, nil)

		room, created, err := f.svc.CreateRoom(context.Background(), f.patient, appt.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, winner, room)
		assert.Empty(t, f.auditor.Actions())
	})

	t.Run("outsider", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusConfirmed, model.AppointmentTypeVideo)
		outsider := model.Actor{UserID: uuid.New(), Role: model.RolePatient}

		_, _, err := f.svc.CreateRoom(context.Background(), outsider, appt.ID)
		assert.ErrorIs(t, err, service.ErrPermission)
	})

	t.Run("in person visit", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusConfirmed, model.AppointmentTypeInPerson)

		_, _, err := f.svc.CreateRoom(context.Background(), f.patient, appt.ID)
		assert.ErrorIs(t, err, ErrNoVideoVisit)
	})

	t.Run("cancelled appointment", func(t *testing.T) {
		f := newFixture()
		appt := f.appointment(model.AppointmentStatusCancelled, model.AppointmentTypeVideo)

		_, _, err := f.svc.CreateRoom(context.Background(), f.patient, appt.ID)
		assert.ErrorIs(t, err, ErrNoVideoVisit)
	})
}

func TestStartAndEnd(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomCreated)
	f.repo.On("UpdateRoom", mock.Anything, room, mock.Anything).Return(nil)

	_, err := f.svc.Start(context.Background(), f.patient, room.RoomID)
	assert.ErrorIs(t, err, ErrDoctorStarts)

	started, err := f.svc.Start(context.Background(), f.doctor, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomActive, started.Status)
	require.NotNil(t, started.StartedAt)

	_, err = f.svc.Start(context.Background(), f.doctor, room.RoomID)
	require.Error(t, err)

	ended, err := f.svc.End(context.Background(), f.patient, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	_, err = f.svc.End(context.Background(), f.patient, room.RoomID)
	require.Error(t, err)
	assert.Equal(t, []string{"start", "end"}, f.auditor.Actions())
}

func TestJoin(t *testing.T) {
	t.Run("active room issues a token", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomActive)
		f.repo.On("CreateJoinToken", mock.Anything, mock.Anything).Return(nil)

		res, err := f.svc.Join(context.Background(), f.patient, room.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.RoomID, res.RoomID)

		claims, err := f.tokens.ValidateRoomToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, f.patient.UserID, claims.UserID)
		assert.Equal(t, room.RoomID, claims.RoomID)
		assert.Equal(t, []string{"join"}, f.auditor.Actions())
	})

	t.Run("room not started", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomCreated)

		_, err := f.svc.Join(context.Background(), f.doctor, room.RoomID)
		assert.ErrorIs(t, err, ErrRoomNotActive)
	})

	t.Run("past expiry marks the room expired", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomActive)
		room.ExpiresAt = fixedNow.Add(-time.Minute)
		f.repo.On("UpdateRoom", mock.Anything, room, []model.RoomStatus{model.RoomActive}).Return(nil)

		_, err := f.svc.Join(context.Background(), f.patient, room.RoomID)
		assert.ErrorIs(t, err, ErrRoomExpired)
		assert.Equal(t, model.RoomExpired, room.Status)
		f.repo.AssertExpectations(t)
	})

	t.Run("outsider", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomActive)

		_, err := f.svc.Join(context.Background(), model.Actor{UserID: uuid.New()}, room.RoomID)
		assert.ErrorIs(t, err, service.ErrPermission)
	})
}

func TestGetRoomAdminBypass(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomActive)

	got, err := f.svc.GetRoom(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, room, got)

	_, err = f.svc.GetRoom(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}, room.RoomID)
	assert.ErrorIs(t, err, service.ErrPermission)
}

func TestStatusReportsExpiry(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomCreated)
	room.ExpiresAt = fixedNow.Add(-time.Second)
	f.repo.On("UpdateRoom", mock.Anything, room, mock.Anything).Return(nil)

	view, err := f.svc.Status(context.Background(), f.doctor, room.RoomID)
	require.NoError(t, err)
	assert.True(t, view.IsExpired)
	assert.Equal(t, model.RoomExpired, view.Status)
}

func TestStatusAfterConcurrentEnd(t *testing.T) {
	f := newFixture()
	stale := &model.RTCRoom{
		ID:        uuid.New(),
		RoomID:    "room_abcdef012345",
		Status:    model.RoomActive,
		ExpiresAt: fixedNow.Add(-time.Second),
		PatientID: f.patient.UserID,
		DoctorID:  f.doctor.UserID,
	}
	ended := *stale
	ended.Status = model.RoomEnded
	f.repo.On("GetRoom", mock.Anything, stale.RoomID).Return(stale, nil).Once()
	f.repo.On("GetRoom", mock.Anything, stale.RoomID).Return(&ended, nil).Once()
	f.repo.On("UpdateRoom", mock.Anything, stale, []model.RoomStatus{model.RoomActive}).Return(repository.ErrStaleState)

	view, err := f.svc.Status(context.Background(), f.doctor, stale.RoomID)
	require.NoError(t, err)
	assert.False(t, view.IsExpired)
	assert.Equal(t, model.RoomEnded, view.Status)
	f.repo.AssertNumberOfCalls(t, "GetRoom", 2)
}

func TestSignal(t *testing.T) {
	payload := model.JSONMap{"sdp": "v=0"}

	t.Run("stored and relayed", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomActive)
		f.repo.On("CreateSignal", mock.Anything, mock.Anything).Return(nil)

		sig, err := f.svc.Signal(context.Background(), f.doctor, &model.SignalRequest{
			RoomID: room.RoomID, SignalType: model.SignalOffer, Payload: payload,
		})
		require.NoError(t, err)
		assert.Equal(t, room.ID, sig.RoomID)
		require.Len(t, f.hub.sent, 1)
		assert.Equal(t, f.doctor.UserID, f.hub.sent[0].sender)
		assert.Equal(t, model.WSTypeSignal, f.hub.sent[0].msg.Type)
		assert.Equal(t, model.SignalOffer, f.hub.sent[0].msg.SignalType)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RTCSignals.WithLabelValues("offer")))
	})

	t.Run("relay failure still stores", func(t *testing.T) {
		f := newFixture()
		f.hub.err = errors.New("redis down")
		room := f.room(model.RoomActive)
		f.repo.On("CreateSignal", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Signal(context.Background(), f.patient, &model.SignalRequest{
			RoomID: room.RoomID, SignalType: model.SignalAnswer, Payload: payload,
		})
		require.NoError(t, err)
		f.repo.AssertCalled(t, "CreateSignal", mock.Anything, mock.Anything)
	})

	t.Run("ended room", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomEnded)

		_, err := f.svc.Signal(context.Background(), f.patient, &model.SignalRequest{
			RoomID: room.RoomID, SignalType: model.SignalOffer, Payload: payload,
		})
		assert.ErrorIs(t, err, ErrRoomClosed)
	})

	t.Run("empty payload", func(t *testing.T) {
		f := newFixture()
		room := f.room(model.RoomActive)

		_, err := f.svc.Signal(context.Background(), f.patient, &model.SignalRequest{
			RoomID: room.RoomID, SignalType: model.SignalOffer,
		})
		assert.ErrorIs(t, err, ErrInvalidSignal)
	})
}

func TestSignalsOldestFirst(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomActive)
	older := &model.RTCSignal{ID: uuid.New(), CreatedAt: fixedNow.Add(-time.Minute)}
	newer := &model.RTCSignal{ID: uuid.New(), CreatedAt: fixedNow}
	f.repo.On("ListSignals", mock.Anything, room.ID, maxSignals).Return([]*model.RTCSignal{newer, older}, nil)

	signals, err := f.svc.Signals(context.Background(), f.patient, room.RoomID)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, older.ID, signals[0].ID)
	assert.Equal(t, newer.ID, signals[1].ID)
}

func TestAuthorizeSocket(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomActive)
	token, _, err := f.tokens.GenerateRoomToken(f.patient.UserID, room.RoomID)
	require.NoError(t, err)

	userID, err := f.svc.AuthorizeSocket(context.Background(), token, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, f.patient.UserID, userID)

	_, err = f.svc.AuthorizeSocket(context.Background(), token, "room_other000000")
	assert.ErrorIs(t, err, ErrRoomTokenScope)

	_, err = f.svc.AuthorizeSocket(context.Background(), "garbage", room.RoomID)
	require.Error(t, err)
}

func TestHandleFrame(t *testing.T) {
	f := newFixture()
	room := f.room(model.RoomActive)
	f.repo.On("CreateSignal", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	reply := f.svc.HandleFrame(ctx, f.patient.UserID, room.RoomID, []byte("{not json"))
	require.NotNil(t, reply)
	assert.Equal(t, model.WSTypeError, reply.Type)
	assert.Equal(t, "Invalid JSON", reply.Message)

	reply = f.svc.HandleFrame(ctx, f.patient.UserID, room.RoomID, []byte(`{"type":"rtc_signal","signal_type":"offer"}`))
	require.NotNil(t, reply)
	assert.Equal(t, "Missing signal_type or payload", reply.Message)

	reply = f.svc.HandleFrame(ctx, f.patient.UserID, room.RoomID,
		[]byte(`{"type":"rtc_signal","signal_type":"ice_candidate","payload":{"candidate":"c"}}`))
	assert.Nil(t, reply)

	reply = f.svc.HandleFrame(ctx, f.patient.UserID, room.RoomID, []byte(`{"type":"join_room"}`))
	assert.Nil(t, reply)

	require.Len(t, f.hub.sent, 2)
	assert.Equal(t, model.SignalIceCandidate, f.hub.sent[0].msg.SignalType)
	assert.Equal(t, model.WSTypeUserJoined, f.hub.sent[1].msg.Type)
	assert.Equal(t, f.patient.UserID.String(), f.hub.sent[1].msg.UserID)
}

func TestExpireRooms(t *testing.T) {
	f := newFixture()
	f.repo.On("ExpireRooms", mock.Anything, fixedNow).Return(int64(3), nil)

	n, err := f.svc.ExpireRooms(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.RoomsExpired))
}
