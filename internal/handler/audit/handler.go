package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

const maxExportRows = 10000

// Lister reads the audit trail.
type Lister interface {
	List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error)
}

type Handler struct {
	service Lister
	now     func() time.Time
}

func NewHandler(service Lister) *Handler {
	return &Handler{service: service, now: time.Now}
}

// RegisterRoutes mounts the audit endpoints. The caller restricts the group to admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
		audit.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) filter(c *gin.Context) (*model.AuditFilter, bool) {
	filter := &model.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Pagination: handler.Page(c),
	}
	var ok bool
	if filter.UserID, ok = handler.QueryID(c, "actor_id"); !ok {
		return nil, false
	}
	if filter.From, ok = handler.QueryDate(c, "date_from"); !ok {
		return nil, false
	}
	to, ok := handler.QueryDate(c, "date_to")
	if !ok {
		return nil, false
	}
	if to != nil {
		// inclusive of the whole day
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	return filter, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, logs, filter.Pagination, total)
}

func (h *Handler) ExportLogs(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		httputil.RespondWithBadRequest(c, "unsupported format")
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	filter.Pagination = model.Pagination{Page: 1, PageSize: maxExportRows}

	logs, _, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.%s", h.now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if format == "json" {
		c.JSON(http.StatusOK, logs)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "User ID", "Action", "Entity Type", "Entity ID", "Method", "Path", "Status", "IP Address", "Created At"})
	for _, l := range logs {
		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		status := ""
		if l.StatusCode != 0 {
			status = fmt.Sprint(l.StatusCode)
		}
		_ = writer.Write([]string{
			l.ID.String(),
			userID,
			l.Action,
			l.EntityType,
			l.EntityID,
			l.Method,
			l.Path,
			status,
			l.IPAddress,
			l.CreatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}
