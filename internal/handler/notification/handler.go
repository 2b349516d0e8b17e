package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/notification"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type Handler struct {
	service notification.NotificationServicer
}

func NewHandler(service notification.NotificationServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/notifications")
	{
		g.GET("", h.List)
		g.GET("/unread", h.Unread)
		g.GET("/stats", h.Stats)
		g.POST("/mark-all-read", h.MarkAllRead)
		g.POST("/send", middleware.RequireRole(model.RoleAdmin, model.RoleDoctor), h.Send)
		g.POST("/send-bulk", middleware.RequireRole(model.RoleAdmin), h.SendBulk)
		g.GET("/:id", h.Get)
		g.POST("/:id/read", h.MarkRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	filter := &model.NotificationFilter{
		Status:     model.NotificationStatus(c.Query("status")),
		Type:       model.NotificationType(c.Query("notification_type")),
		Channel:    c.Query("channel"),
		Pagination: handler.Page(c),
	}
	items, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, filter.Pagination, total)
}

func (h *Handler) Unread(c *gin.Context) {
	p := handler.Page(c)
	items, total, err := h.service.Unread(c.Request.Context(), handler.Actor(c), p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, items, p, total)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "notification")
	if !ok {
		return
	}
	n, err := h.service.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, n)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "notification")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), handler.Actor(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithMessage(c, "notification marked as read")
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.service.MarkAllRead(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, gin.H{"updated": n})
}

func (h *Handler) Send(c *gin.Context) {
	var req model.SendNotificationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	n, err := h.service.Send(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, n)
}

func (h *Handler) SendBulk(c *gin.Context) {
	var req model.BulkNotificationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	created, err := h.service.SendBulk(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httputil.Response{
		Status: "success",
		Data:   gin.H{"created": created, "requested": len(req.UserIDs)},
	})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, stats)
}
