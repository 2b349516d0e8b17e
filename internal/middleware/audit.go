package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
)

// AuditMiddleware writes an audit entry for every mutating request by an authenticated user.
type AuditMiddleware struct {
	auditor audit.Auditor
	skip    map[string]struct{}
}

func NewAuditMiddleware(auditor audit.Auditor, skipPaths []string) *AuditMiddleware {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return &AuditMiddleware{auditor: auditor, skip: skip}
}

func (m *AuditMiddleware) AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := actionFor(c.Request.Method)
		if !ok {
			return
		}
		if _, skip := m.skip[c.Request.URL.Path]; skip {
			return
		}
		actor := handler.Actor(c)
		if actor.UserID == uuid.Nil {
			return
		}

		entry := audit.Entry{
			UserID:     &actor.UserID,
			Action:     action,
			EntityType: entityFromRoute(c.FullPath()),
			EntityID:   firstParam(c, "id", "room_id", "patient_id"),
			IPAddress:  RealIP(c),
			UserAgent:  c.Request.UserAgent(),
			Path:       c.Request.URL.Path,
			Method:     c.Request.Method,
			StatusCode: c.Writer.Status(),
			Metadata: model.JSONMap{
				"route":      c.FullPath(),
				"request_id": c.GetString(ContextRequestID),
			},
		}
		// Log swallows its own failures.
		m.auditor.Log(c.Request.Context(), entry)
	}
}

func actionFor(method string) (string, bool) {
	switch method {
	case http.MethodPost:
		return model.AuditActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return model.AuditActionUpdate, true
	case http.MethodDelete:
		return model.AuditActionDelete, true
	}
	return "", false
}

// entityFromRoute takes the resource segment of a route like /api/v1/appointments/:id/cancel.
func entityFromRoute(route string) string {
	if route == "" {
		return model.AuditEntityRequest
	}
	for _, seg := range strings.Split(strings.Trim(route, "/"), "/") {
		if seg == "api" || seg == "" || seg[0] == ':' || isVersion(seg) {
			continue
		}
		return seg
	}
	return model.AuditEntityRequest
}

func isVersion(seg string) bool {
	return len(seg) > 1 && seg[0] == 'v' && seg[1] >= '0' && seg[1] <= '9'
}

func firstParam(c *gin.Context, names ...string) string {
	for _, n := range names {
		if v := c.Param(n); v != "" {
			return v
		}
	}
	return ""
}

// RealIP prefers the first hop in X-Forwarded-For over the socket address.
func RealIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}
