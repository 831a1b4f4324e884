package admission

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/internal/handler"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/internal/model"
	admissionService "github.com/jwalitptl/ward-api/internal/service/admission"
)

const resource = "admission"

type Handler struct {
	service admissionService.AdmissionServicer
}

func NewHandler(service admissionService.AdmissionServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admissions := r.Group("/admissions")
	{
		admissions.POST("", h.CreateAdmission)
		admissions.GET("", h.ListAdmissions)
		admissions.GET("/summary", h.GetSummary)
		admissions.GET("/reference/:reference", h.GetAdmissionByReference)
		admissions.GET("/:id", h.GetAdmission)
		admissions.PATCH("/:id", h.UpdateAdmission)
		admissions.DELETE("/:id", h.DeleteAdmission)
		admissions.POST("/:id/admit", h.Admit)
		admissions.POST("/:id/discharge", h.Discharge)
		admissions.POST("/:id/cancel", h.Cancel)
		admissions.POST("/:id/reassign", h.Reassign)
	}
}

func (h *Handler) CreateAdmission(c *gin.Context) {
	var req model.CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	admission, err := h.service.Create(c.Request.Context(), middleware.ActorFromContext(c), &req)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(admission))
}

func (h *Handler) GetAdmission(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	admission, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) GetAdmissionByReference(c *gin.Context) {
	admission, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) ListAdmissions(c *gin.Context) {
	var filters model.AdmissionFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BindFailed(c, err)
		return
	}
	var ok bool
	if filters.BedID, ok = handler.QueryID(c, "bed_id"); !ok {
		return
	}
	if filters.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}

	admissions, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admissions))
}

type summaryQuery struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to" time_format:"2006-01-02"`
}

// GetSummary counts admissions per state, optionally limited to an
// admission-date range.
func (h *Handler) GetSummary(c *gin.Context) {
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindFailed(c, err)
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), q.From, q.To)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

func (h *Handler) UpdateAdmission(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	admission, err := h.service.UpdateDetails(c.Request.Context(), middleware.ActorFromContext(c), id, &req)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) DeleteAdmission(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.ActorFromContext(c), id); err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Admit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	admission, err := h.service.Admit(c.Request.Context(), middleware.ActorFromContext(c), id)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) Discharge(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	// The body is optional.
	var req model.DischargeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BindFailed(c, err)
			return
		}
	}

	admission, err := h.service.Discharge(c.Request.Context(), middleware.ActorFromContext(c), id, req.Summary)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	admission, err := h.service.Cancel(c.Request.Context(), middleware.ActorFromContext(c), id)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}

func (h *Handler) Reassign(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	admission, err := h.service.Reassign(c.Request.Context(), middleware.ActorFromContext(c), id, req.BedID)
	if err != nil {
		handler.Fail(c, resource, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(admission))
}
