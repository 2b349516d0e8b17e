package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

// Context keys set by the auth middleware.
const (
	ActorKey  = "actor"
	UserIDKey = "user_id"
)

// RouteRegistrar is implemented by every resource handler.
type RouteRegistrar interface {
	RegisterRoutes(r *gin.RouterGroup)
}

func SetActor(c *gin.Context, actor model.Actor) {
	c.Set(ActorKey, actor)
	c.Set(UserIDKey, actor.UserID)
}

// Actor returns the authenticated caller. The zero Actor is returned on public routes.
func Actor(c *gin.Context) model.Actor {
	if v, ok := c.Get(ActorKey); ok {
		if actor, ok := v.(model.Actor); ok {
			return actor
		}
	}
	return model.Actor{}
}

// ParseID reads a uuid path parameter, answering 400 when it is malformed.
func ParseID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid "+resource+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// QueryID reads an optional uuid query parameter.
func QueryID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}

// QueryDate reads an optional YYYY-MM-DD query parameter as a UTC midnight.
func QueryDate(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httputil.RespondWithBadRequest(c, key+" must be a date in YYYY-MM-DD format")
		return nil, false
	}
	return &t, true
}

func Page(c *gin.Context) model.Pagination {
	page, size := httputil.PageParams(c)
	return model.Pagination{Page: page, PageSize: size}
}

// List writes a paginated envelope for p.
func List(c *gin.Context, items interface{}, p model.Pagination, total int) {
	httputil.RespondWithPagination(c, items, p.Page, p.PageSize, total)
}

func Created(c *gin.Context, data interface{}) {
	httputil.RespondWithCreated(c, data)
}

func OK(c *gin.Context, data interface{}) {
	httputil.RespondWithSuccess(c, data)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
