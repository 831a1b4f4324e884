package bed

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/internal/handler"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/internal/model"
	bedService "github.com/jwalitptl/ward-api/internal/service/bed"
)

type Handler struct {
	service bedService.BedServicer
}

func NewHandler(service bedService.BedServicer) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the bed and room routes. Writes go through
// requireAdmin.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	beds := r.Group("/beds")
	{
		beds.POST("", requireAdmin, h.CreateBed)
		beds.GET("", h.ListBeds)
		beds.GET("/:id", h.GetBed)
		beds.DELETE("/:id", requireAdmin, h.DeleteBed)
		beds.PUT("/:id/maintenance", requireAdmin, h.SetMaintenance)
	}

	rooms := r.Group("/rooms")
	{
		rooms.POST("", requireAdmin, h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.GET("/:id", h.GetRoom)
	}
}

func (h *Handler) CreateBed(c *gin.Context) {
	var req model.CreateBedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	bed, err := h.service.CreateBed(c.Request.Context(), middleware.ActorFromContext(c), &req)
	if err != nil {
		handler.Fail(c, "bed", err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(bed))
}

func (h *Handler) GetBed(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	bed, err := h.service.GetBed(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, "bed", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(bed))
}

func (h *Handler) ListBeds(c *gin.Context) {
	var filters model.BedFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BindFailed(c, err)
		return
	}
	var ok bool
	if filters.RoomID, ok = handler.QueryID(c, "room_id"); !ok {
		return
	}

	beds, err := h.service.ListBeds(c.Request.Context(), &filters)
	if err != nil {
		handler.Fail(c, "bed", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(beds))
}

func (h *Handler) DeleteBed(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteBed(c.Request.Context(), middleware.ActorFromContext(c), id); err != nil {
		handler.Fail(c, "bed", err)
		return
	}

	c.Status(http.StatusNoContent)
}

type maintenanceRequest struct {
	Maintenance *bool `json:"maintenance" binding:"required"`
}

// SetMaintenance takes a free bed out of service or returns it.
func (h *Handler) SetMaintenance(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	bed, err := h.service.SetMaintenance(c.Request.Context(), middleware.ActorFromContext(c), id, *req.Maintenance)
	if err != nil {
		handler.Fail(c, "bed", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(bed))
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req model.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFailed(c, err)
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), middleware.ActorFromContext(c), &req)
	if err != nil {
		handler.Fail(c, "room", err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(room))
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.service.ListRooms(c.Request.Context())
	if err != nil {
		handler.Fail(c, "room", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(rooms))
}

func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	room, err := h.service.RoomOccupancy(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, "room", err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(room))
}
