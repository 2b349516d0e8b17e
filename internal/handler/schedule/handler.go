package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/schedule"
)

type Handler struct {
	service schedule.ScheduleServicer
}

func NewHandler(service schedule.ScheduleServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.GET("", h.ListSlots)

		doctorOnly := slots.Group("", middleware.RequireRole(model.RoleDoctor))
		doctorOnly.POST("", h.CreateSlot)
		doctorOnly.POST("/bulk", h.GenerateSlots)
		doctorOnly.PUT("/:id/block", h.BlockSlot)
		doctorOnly.PUT("/:id/unblock", h.UnblockSlot)
		doctorOnly.DELETE("/:id", h.DeleteSlot)
	}
}

func (h *Handler) ListSlots(c *gin.Context) {
	doctorID, ok := handler.QueryID(c, "doctor_id")
	if !ok {
		return
	}
	date, ok := handler.QueryDate(c, "date")
	if !ok {
		return
	}

	filter := &model.SlotFilter{DoctorID: doctorID, Pagination: handler.Page(c)}
	if date != nil {
		end := date.AddDate(0, 0, 1)
		filter.From = date
		filter.To = &end
	}

	slots, total, err := h.service.ListSlots(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, slots, filter.Pagination, total)
}

func (h *Handler) CreateSlot(c *gin.Context) {
	var req model.CreateSlotRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, slot)
}

func (h *Handler) GenerateSlots(c *gin.Context) {
	var req model.BulkSlotRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.service.GenerateSlots(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": gin.H{"created": created}})
}

func (h *Handler) BlockSlot(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "slot")
	if !ok {
		return
	}

	slot, err := h.service.BlockSlot(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, slot)
}

func (h *Handler) UnblockSlot(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "slot")
	if !ok {
		return
	}

	slot, err := h.service.UnblockSlot(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, slot)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "slot")
	if !ok {
		return
	}

	if err := h.service.DeleteSlot(c.Request.Context(), handler.Actor(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	handler.NoContent(c)
}
