package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/user"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type Handler struct {
	service user.UserServicer
}

func NewHandler(service user.UserServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", middleware.RequireRole(model.RoleAdmin), h.ListUsers)
		users.GET("/me", h.Me)
		users.GET("/profile", h.Me)
		users.PUT("/profile", h.UpdateProfile)

		users.POST("/verify/phone", h.StartPhoneVerification)
		users.POST("/verify/phone/check", h.CheckPhoneVerification)
		users.POST("/verify/identity", middleware.RequireRole(model.RoleAdmin), h.VerifyIdentity)
	}
}

func (h *Handler) Me(c *gin.Context) {
	me, err := h.service.Me(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, me)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req model.UpdateProfileRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	me, err := h.service.UpdateProfile(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, me)
}

func (h *Handler) ListUsers(c *gin.Context) {
	filter := &model.UserFilter{
		Role:       model.Role(c.Query("role")),
		Search:     c.Query("search"),
		Pagination: handler.Page(c),
	}

	users, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, users, filter.Pagination, total)
}

func (h *Handler) StartPhoneVerification(c *gin.Context) {
	if err := h.service.StartPhoneVerification(c.Request.Context(), handler.Actor(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithMessage(c, "verification code sent")
}

func (h *Handler) CheckPhoneVerification(c *gin.Context) {
	var req model.VerifyPhoneRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.CheckPhoneVerification(c.Request.Context(), handler.Actor(c), req.Code); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithMessage(c, "phone number verified")
}

func (h *Handler) VerifyIdentity(c *gin.Context) {
	var req model.VerifyIdentityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.VerifyIdentity(c.Request.Context(), handler.Actor(c), &req); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithMessage(c, "identity verification updated")
}
