package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
)

// Authenticator is the account entry point used by the auth routes.
type Authenticator interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*model.AuthResponse, error)
}

type Handler struct {
	svc Authenticator
}

func NewHandler(svc Authenticator) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.Created(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, resp)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, resp)
}
