package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/event"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Book(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	args := m.Called(ctx, actor, req)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, actor, id)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) List(ctx context.Context, actor model.Actor, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	args := m.Called(ctx, actor, filter)
	appts, _ := args.Get(0).([]*model.Appointment)
	return appts, args.Int(1), args.Error(2)
}

func (m *mockService) Upcoming(ctx context.Context, actor model.Actor) ([]*model.Appointment, error) {
	args := m.Called(ctx, actor)
	appts, _ := args.Get(0).([]*model.Appointment)
	return appts, args.Error(1)
}

func (m *mockService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	args := m.Called(ctx, actor, id, req)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Appointment, error) {
	args := m.Called(ctx, actor, id, reason)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) Reschedule(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RescheduleRequest) (*model.Appointment, *model.AppointmentReschedule, error) {
	args := m.Called(ctx, actor, id, req)
	appt, _ := args.Get(0).(*model.Appointment)
	record, _ := args.Get(1).(*model.AppointmentReschedule)
	return appt, record, args.Error(2)
}

func (m *mockService) Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, actor, id)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) End(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, actor, id)
	appt, _ := args.Get(0).(*model.Appointment)
	return appt, args.Error(1)
}

func (m *mockService) Reminders(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.AppointmentReminder, error) {
	args := m.Called(ctx, actor, id)
	reminders, _ := args.Get(0).([]*model.AppointmentReminder)
	return reminders, args.Error(1)
}

type emitted struct {
	eventType string
	payload   map[string]interface{}
}

type recordingEmitter struct {
	events []emitted
}

func (r *recordingEmitter) Emit(_ context.Context, eventType string, payload interface{}) error {
	p, _ := payload.(map[string]interface{})
	r.events = append(r.events, emitted{eventType: eventType, payload: p})
	return nil
}

func setup(actor model.Actor) (*gin.Engine, *mockService, *recordingEmitter) {
	gin.SetMode(gin.TestMode)
	svc := new(mockService)
	emitter := &recordingEmitter{}

	engine := gin.New()
	group := engine.Group("/api/v1")
	group.Use(func(c *gin.Context) {
		handler.SetActor(c, actor)
		c.Next()
	})
	NewHandler(svc).RegisterRoutesWithEvents(group, event.NewEventTracker(emitter, true))
	return engine, svc, emitter
}

func do(engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func sampleAppointment(patient, doctor uuid.UUID) *model.Appointment {
	appt := &model.Appointment{
		PatientID:       patient,
		DoctorID:        doctor,
		SlotID:          uuid.New(),
		AppointmentType: model.AppointmentTypeVideo,
		Status:          model.AppointmentStatusPending,
		ScheduledAt:     time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC),
	}
	appt.ID = uuid.New()
	return appt
}

func TestCreateAppointmentEmitsEvent(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, emitter := setup(patient)

	slotID := uuid.New()
	appt := sampleAppointment(patient.UserID, uuid.New())
	svc.On("Book", mock.Anything, patient, mock.MatchedBy(func(r *model.CreateAppointmentRequest) bool {
		return r.SlotID == slotID && r.Reason == "fever"
	})).Return(appt, nil)

	w := do(engine, http.MethodPost, "/api/v1/appointments", map[string]interface{}{
		"slot_id": slotID,
		"reason":  "fever",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, model.EventAppointmentCreate, emitter.events[0].eventType)
	assert.Equal(t, appt.ID, emitter.events[0].payload["id"])
	assert.NotContains(t, emitter.events[0].payload, "reason")
	svc.AssertExpectations(t)
}

func TestCreateAppointmentValidation(t *testing.T) {
	engine, svc, emitter := setup(model.Actor{UserID: uuid.New(), Role: model.RolePatient})

	w := do(engine, http.MethodPost, "/api/v1/appointments", map[string]interface{}{"reason": "no slot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, emitter.events)
	svc.AssertNotCalled(t, "Book", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointmentDoctorForbidden(t *testing.T) {
	engine, svc, _ := setup(model.Actor{UserID: uuid.New(), Role: model.RoleDoctor})

	w := do(engine, http.MethodPost, "/api/v1/appointments", map[string]interface{}{
		"slot_id": uuid.New(),
		"reason":  "x",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Book", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointmentConflictEmitsNothing(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, emitter := setup(patient)
	svc.On("Book", mock.Anything, patient, mock.Anything).Return(nil, apperrors.NewConflict("slot is no longer available"))

	w := do(engine, http.MethodPost, "/api/v1/appointments", map[string]interface{}{
		"slot_id": uuid.New(),
		"reason":  "x",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "slot is no longer available", resp.Message)
	assert.Empty(t, emitter.events)
}

func TestCancelAppointmentAnnotatesCanceller(t *testing.T) {
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	engine, svc, emitter := setup(doctor)

	appt := sampleAppointment(uuid.New(), doctor.UserID)
	appt.Status = model.AppointmentStatusCancelled
	svc.On("Cancel", mock.Anything, doctor, appt.ID, "emergency").Return(appt, nil)

	w := do(engine, http.MethodPost, "/api/v1/appointments/"+appt.ID.String()+"/cancel", map[string]string{"reason": "emergency"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, model.EventAppointmentCancel, emitter.events[0].eventType)
	assert.Equal(t, doctor.UserID, emitter.events[0].payload["cancelled_by"])
}

func TestCancelWithoutBody(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, _ := setup(patient)

	appt := sampleAppointment(patient.UserID, uuid.New())
	svc.On("Cancel", mock.Anything, patient, appt.ID, "").Return(appt, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+appt.ID.String()+"/cancel", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGetAppointment(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, _ := setup(patient)

	w := do(engine, http.MethodGet, "/api/v1/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := uuid.New()
	svc.On("Get", mock.Anything, patient, missing).Return(nil, apperrors.NewNotFound("appointment", nil))
	w = do(engine, http.MethodGet, "/api/v1/appointments/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAppointmentsFilter(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, _ := setup(patient)

	w := do(engine, http.MethodGet, "/api/v1/appointments?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	doctorID := uuid.New()
	appts := []*model.Appointment{sampleAppointment(patient.UserID, doctorID)}
	svc.On("List", mock.Anything, patient, mock.MatchedBy(func(f *model.AppointmentFilter) bool {
		return f.Status == model.AppointmentStatusConfirmed && f.DoctorID != nil && *f.DoctorID == doctorID && f.Pagination.Page == 2
	})).Return(appts, 11, nil)

	w = do(engine, http.MethodGet, "/api/v1/appointments?status=confirmed&doctor_id="+doctorID.String()+"&page=2&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data httputil.PaginatedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.Data.Pagination.Total)
	assert.Equal(t, 2, resp.Data.Pagination.TotalPage)
}

func TestRescheduleReturnsRecord(t *testing.T) {
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	engine, svc, emitter := setup(patient)

	appt := sampleAppointment(patient.UserID, uuid.New())
	oldSlot := uuid.New()
	record := &model.AppointmentReschedule{AppointmentID: appt.ID, OldSlotID: oldSlot, NewSlotID: appt.SlotID}
	svc.On("Reschedule", mock.Anything, patient, appt.ID, mock.Anything).Return(appt, record, nil)

	w := do(engine, http.MethodPost, "/api/v1/appointments/"+appt.ID.String()+"/reschedule", map[string]interface{}{
		"new_slot_id": appt.SlotID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reschedule"`)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, model.EventAppointmentReschedule, emitter.events[0].eventType)
	assert.Equal(t, oldSlot, emitter.events[0].payload["old_slot_id"])
}
