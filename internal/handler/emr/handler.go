package emr

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/emr"
	"github.com/jwalitptl/telehealth-api/pkg/event"
)

var prescriptionFields = []string{"id", "patient_id", "doctor_id", "medication_name", "status"}

type Handler struct {
	service emr.EMRServicer
}

func NewHandler(service emr.EMRServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutesWithEvents(r *gin.RouterGroup, tracker *event.EventTracker) {
	g := r.Group("/emr")
	{
		g.GET("/records", h.ListRecords)
		g.POST("/records", h.CreateRecord)
		g.GET("/records/:id", h.GetRecord)
		g.PUT("/records/:id", h.UpdateRecord)

		g.GET("/prescriptions", h.ListPrescriptions)
		g.POST("/prescriptions", tracker.TrackEvent("prescription", "create", prescriptionFields...), h.CreatePrescription)
		g.GET("/prescriptions/:id", h.GetPrescription)
		g.PUT("/prescriptions/:id", h.UpdatePrescription)
		g.POST("/prescriptions/:id/refill", h.Refill)

		g.GET("/lab-results", h.ListLabResults)
		g.POST("/lab-results", h.CreateLabResult)
		g.GET("/lab-results/:id", h.GetLabResult)
		g.PUT("/lab-results/:id", h.UpdateLabResult)

		g.GET("/vitals", h.ListVitals)
		g.POST("/vitals", h.RecordVitals)

		g.GET("/allergies", h.ListAllergies)
		g.POST("/allergies", h.CreateAllergy)
		g.PUT("/allergies/:id", h.UpdateAllergy)

		g.GET("/stats/doctor", h.DoctorStats)
		g.GET("/summary/patient/:patient_id", h.PatientSummary)
	}
}

// listQuery reads the optional patient_id filter and the page.
func listQuery(c *gin.Context) (*uuid.UUID, model.Pagination, bool) {
	patientID, ok := handler.QueryID(c, "patient_id")
	return patientID, handler.Page(c), ok
}

func (h *Handler) ListRecords(c *gin.Context) {
	patientID, p, ok := listQuery(c)
	if !ok {
		return
	}
	records, total, err := h.service.ListRecords(c.Request.Context(), handler.Actor(c), patientID, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, records, p, total)
}

func (h *Handler) CreateRecord(c *gin.Context) {
	var req model.MedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	record, err := h.service.CreateRecord(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, record)
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "medical record")
	if !ok {
		return
	}
	record, err := h.service.GetRecord(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, record)
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "medical record")
	if !ok {
		return
	}
	var req model.MedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	record, err := h.service.UpdateRecord(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, record)
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	patientID, p, ok := listQuery(c)
	if !ok {
		return
	}
	items, total, err := h.service.ListPrescriptions(c.Request.Context(), handler.Actor(c), patientID, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, p, total)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	var req model.PrescriptionRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	rx, err := h.service.CreatePrescription(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	event.Record(c, rx)
	handler.Created(c, rx)
}

func (h *Handler) GetPrescription(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "prescription")
	if !ok {
		return
	}
	rx, err := h.service.GetPrescription(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, rx)
}

func (h *Handler) UpdatePrescription(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "prescription")
	if !ok {
		return
	}
	var req model.PrescriptionRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	rx, err := h.service.UpdatePrescription(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, rx)
}

func (h *Handler) Refill(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "prescription")
	if !ok {
		return
	}
	rx, err := h.service.Refill(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, rx)
}

func (h *Handler) ListLabResults(c *gin.Context) {
	patientID, p, ok := listQuery(c)
	if !ok {
		return
	}
	items, total, err := h.service.ListLabResults(c.Request.Context(), handler.Actor(c), patientID, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, p, total)
}

func (h *Handler) CreateLabResult(c *gin.Context) {
	var req model.LabResultRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	lab, err := h.service.CreateLabResult(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, lab)
}

func (h *Handler) GetLabResult(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "lab result")
	if !ok {
		return
	}
	lab, err := h.service.GetLabResult(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, lab)
}

func (h *Handler) UpdateLabResult(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "lab result")
	if !ok {
		return
	}
	var req model.LabResultRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	lab, err := h.service.UpdateLabResult(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, lab)
}

func (h *Handler) ListVitals(c *gin.Context) {
	patientID, p, ok := listQuery(c)
	if !ok {
		return
	}
	items, total, err := h.service.ListVitals(c.Request.Context(), handler.Actor(c), patientID, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, p, total)
}

func (h *Handler) RecordVitals(c *gin.Context) {
	var req model.VitalSignRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	v, err := h.service.RecordVitals(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, v)
}

func (h *Handler) ListAllergies(c *gin.Context) {
	patientID, p, ok := listQuery(c)
	if !ok {
		return
	}
	items, total, err := h.service.ListAllergies(c.Request.Context(), handler.Actor(c), patientID, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, p, total)
}

func (h *Handler) CreateAllergy(c *gin.Context) {
	var req model.AllergyRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	a, err := h.service.CreateAllergy(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, a)
}

func (h *Handler) UpdateAllergy(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "allergy")
	if !ok {
		return
	}
	var req model.AllergyRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	a, err := h.service.UpdateAllergy(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, a)
}

func (h *Handler) DoctorStats(c *gin.Context) {
	stats, err := h.service.DoctorStats(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, stats)
}

func (h *Handler) PatientSummary(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "patient_id", "patient")
	if !ok {
		return
	}
	summary, err := h.service.PatientSummary(c.Request.Context(), handler.Actor(c), patientID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, summary)
}
