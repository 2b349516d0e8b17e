package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/appointment"
	"github.com/jwalitptl/telehealth-api/pkg/event"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

// EventFields is the appointment payload carried by APPOINTMENT_* events.
var EventFields = []string{"id", "patient_id", "doctor_id", "status", "scheduled_at", "appointment_type"}

type Handler struct {
	service appointment.AppointmentServicer
}

func NewHandler(service appointment.AppointmentServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutesWithEvents(r *gin.RouterGroup, tracker *event.EventTracker) {
	appts := r.Group("/appointments")
	{
		appts.POST("", middleware.RequireRole(model.RolePatient),
			tracker.TrackEvent("appointment", "create", EventFields...), h.CreateAppointment)
		appts.GET("", h.ListAppointments)
		appts.GET("/upcoming", h.Upcoming)
		appts.GET("/:id", h.GetAppointment)
		appts.PUT("/:id", h.UpdateAppointment)
		appts.POST("/:id/cancel", tracker.TrackEvent("appointment", "cancel", EventFields...), h.CancelAppointment)
		appts.POST("/:id/reschedule", tracker.TrackEvent("appointment", "reschedule", EventFields...), h.Reschedule)
		appts.POST("/:id/start", h.Start)
		appts.POST("/:id/end", h.End)
		appts.GET("/:id/reminders", h.Reminders)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appt, err := h.service.Book(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	event.Record(c, appt)
	handler.Created(c, appt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}

	appt, err := h.service.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, appt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filter := &model.AppointmentFilter{
		Status:          model.AppointmentStatus(c.Query("status")),
		AppointmentType: model.AppointmentType(c.Query("appointment_type")),
		Ordering:        c.Query("ordering"),
		Pagination:      handler.Page(c),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.RespondWithBadRequest(c, "invalid status")
		return
	}

	var ok bool
	if filter.DoctorID, ok = handler.QueryID(c, "doctor_id"); !ok {
		return
	}
	if filter.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}

	appts, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, appts, filter.Pagination, total)
}

func (h *Handler) Upcoming(c *gin.Context) {
	appts, err := h.service.Upcoming(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, appts)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		httputil.RespondWithBadRequest(c, "invalid status")
		return
	}

	appt, err := h.service.Update(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, appt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.CancelAppointmentRequest
	// the body is optional
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	actor := handler.Actor(c)
	appt, err := h.service.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	event.Record(c, appt)
	event.Annotate(c, "cancelled_by", actor.UserID)
	handler.OK(c, appt)
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.RescheduleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appt, record, err := h.service.Reschedule(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	event.Record(c, appt)
	event.Annotate(c, "old_slot_id", record.OldSlotID)
	handler.OK(c, gin.H{"appointment": appt, "reschedule": record})
}

func (h *Handler) Start(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}

	appt, err := h.service.Start(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, appt)
}

func (h *Handler) End(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}

	appt, err := h.service.End(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, appt)
}

func (h *Handler) Reminders(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}

	reminders, err := h.service.Reminders(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, reminders)
}
