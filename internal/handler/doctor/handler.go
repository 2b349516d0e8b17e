package doctor

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/doctor"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type Handler struct {
	service doctor.DoctorServicer
}

func NewHandler(service doctor.DoctorServicer) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts the directory, which needs no login.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("", h.Directory)
		doctors.GET("/:id", h.GetDoctor)
		doctors.GET("/:id/availability", h.OpenSlots)
		doctors.GET("/:id/reviews", h.ListReviews)
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("/register", middleware.RequireRole(model.RoleDoctor), h.Register)
		doctors.GET("/profile", h.GetProfile)
		doctors.PUT("/profile", h.UpdateProfile)

		doctors.GET("/availability", h.ListAvailability)
		doctors.POST("/availability", h.CreateAvailability)
		doctors.PUT("/availability/:id", h.UpdateAvailability)
		doctors.DELETE("/availability/:id", h.DeleteAvailability)

		doctors.POST("/:id/reviews", middleware.RequireRole(model.RolePatient), h.CreateReview)
		doctors.PUT("/:id/kyc", middleware.RequireRole(model.RoleAdmin), h.SetKYCStatus)
	}
}

func (h *Handler) Directory(c *gin.Context) {
	filter := &model.DoctorFilter{
		Specialty:  c.Query("specialty"),
		Search:     c.Query("search"),
		Ordering:   c.Query("ordering"),
		Pagination: handler.Page(c),
	}
	if raw := c.Query("max_fee"); raw != "" {
		fee, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.RespondWithBadRequest(c, "max_fee must be a number")
			return
		}
		filter.MaxFee = &fee
	}

	doctors, total, err := h.service.Directory(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, doctors, filter.Pagination, total)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "doctor")
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, d)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.Register(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, d)
}

func (h *Handler) GetProfile(c *gin.Context) {
	d, err := h.service.GetProfile(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, d)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req model.UpdateDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.UpdateProfile(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, d)
}

func (h *Handler) SetKYCStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "doctor")
	if !ok {
		return
	}
	var req model.KYCRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.SetKYCStatus(c.Request.Context(), handler.Actor(c), id, req.Status)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, d)
}

func (h *Handler) ListAvailability(c *gin.Context) {
	windows, err := h.service.ListAvailability(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, windows)
}

func (h *Handler) CreateAvailability(c *gin.Context) {
	var req model.AvailabilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	window, err := h.service.CreateAvailability(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, window)
}

func (h *Handler) UpdateAvailability(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "availability")
	if !ok {
		return
	}
	var req model.AvailabilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	window, err := h.service.UpdateAvailability(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, window)
}

func (h *Handler) DeleteAvailability(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "availability")
	if !ok {
		return
	}

	if err := h.service.DeleteAvailability(c.Request.Context(), handler.Actor(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	handler.NoContent(c)
}

func (h *Handler) OpenSlots(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "doctor")
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		httputil.RespondWithBadRequest(c, "date is required")
		return
	}

	slots, err := h.service.OpenSlots(c.Request.Context(), id, date)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, slots)
}

func (h *Handler) ListReviews(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "doctor")
	if !ok {
		return
	}
	p := handler.Page(c)

	reviews, total, err := h.service.ListReviews(c.Request.Context(), id, p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, reviews, p, total)
}

func (h *Handler) CreateReview(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "doctor")
	if !ok {
		return
	}
	var req model.ReviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	review, err := h.service.CreateReview(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, review)
}
