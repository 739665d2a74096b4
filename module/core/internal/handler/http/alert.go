package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

type alertQuery interface {
	ListAlerts(ctx context.Context, limit int, unreadOnly bool) ([]domain.Alert, error)
}

type alertAdmin interface {
	MarkAlertRead(ctx context.Context, id int64) (domain.Alert, error)
}

type AlertHandler struct {
	query alertQuery
	admin alertAdmin
}

func NewAlertHandler(query alertQuery, admin alertAdmin) *AlertHandler {
	return &AlertHandler{query: query, admin: admin}
}

func (h *AlertHandler) Register(r *gin.RouterGroup) {
	r.GET("/alerts", h.ListAlerts)
	r.PATCH("/alerts/:alert_id/read", h.MarkRead)
}

// ListAlerts returns alerts newest first; ?unread=true filters to unread ones.
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	unread := false
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid unread parameter")
			return
		}
		unread = v
	}

	alerts, err := h.query.ListAlerts(c.Request.Context(), limit, unread)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

func (h *AlertHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "alert_id")
	if !ok {
		return
	}

	a, err := h.admin.MarkAlertRead(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}
