package audit

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/internal/handler"
	"github.com/jwalitptl/ward-api/internal/model"
)

type Lister interface {
	List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
}

type Handler struct {
	service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
	}
}

// ListLogs returns audit entries, newest first, filtered by entity or actor.
func (h *Handler) ListLogs(c *gin.Context) {
	var filters model.AuditFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BindFailed(c, err)
		return
	}
	var ok bool
	if filters.EntityID, ok = handler.QueryID(c, "entity_id"); !ok {
		return
	}
	if filters.ActorID, ok = handler.QueryID(c, "actor_id"); !ok {
		return
	}

	logs, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.Fail(c, "audit log", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
