package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

type geofenceQuery interface {
	ListGeofences(ctx context.Context) ([]domain.Geofence, error)
	GetGeofence(ctx context.Context, id int64) (domain.Geofence, error)
}

type geofenceAdmin interface {
	CreateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	UpdateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	DeleteGeofence(ctx context.Context, id int64) error
	AssignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error)
	UnassignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error)
}

// geofenceRequest is checked by binding first; shape geometry is checked by
// the admin service.
type geofenceRequest struct {
	Name         string          `json:"name" binding:"required,max=128"`
	Shape        domain.Shape    `json:"shape" binding:"required,oneof=circle polygon rectangle"`
	Center       domain.Point    `json:"center"`
	Radius       float64         `json:"radius" binding:"gte=0"`
	Vertices     []domain.Point  `json:"vertices"`
	Corners      [2]domain.Point `json:"corners"`
	AlertOnEnter bool            `json:"alert_on_enter"`
	AlertOnExit  bool            `json:"alert_on_exit"`
	AlertOnSpeed bool            `json:"alert_on_speed"`
	SpeedLimit   *float64        `json:"speed_limit" binding:"omitempty,gt=0"`
	Priority     domain.Priority `json:"priority" binding:"omitempty,oneof=high medium low"`
	VehicleIDs   []int64         `json:"vehicle_ids" binding:"omitempty,dive,gt=0"`
}

type GeofenceHandler struct {
	query geofenceQuery
	admin geofenceAdmin
}

func NewGeofenceHandler(query geofenceQuery, admin geofenceAdmin) *GeofenceHandler {
	return &GeofenceHandler{query: query, admin: admin}
}

func (h *GeofenceHandler) Register(r *gin.RouterGroup) {
	r.GET("/geofences", h.ListGeofences)
	r.POST("/geofences", h.CreateGeofence)
	r.GET("/geofences/:geofence_id", h.GetGeofence)
	r.PUT("/geofences/:geofence_id", h.UpdateGeofence)
	r.DELETE("/geofences/:geofence_id", h.DeleteGeofence)
	r.PUT("/geofences/:geofence_id/vehicles/:vehicle_id", h.AssignVehicle)
	r.DELETE("/geofences/:geofence_id/vehicles/:vehicle_id", h.UnassignVehicle)
}

func (h *GeofenceHandler) ListGeofences(c *gin.Context) {
	geofences, err := h.query.ListGeofences(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, geofences)
}

func (h *GeofenceHandler) GetGeofence(c *gin.Context) {
	id, ok := paramID(c, "geofence_id")
	if !ok {
		return
	}

	g, err := h.query.GetGeofence(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

func (h *GeofenceHandler) CreateGeofence(c *gin.Context) {
	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := h.admin.CreateGeofence(c.Request.Context(), req.toGeofence(0))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, g)
}

func (h *GeofenceHandler) UpdateGeofence(c *gin.Context) {
	id, ok := paramID(c, "geofence_id")
	if !ok {
		return
	}
	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := h.admin.UpdateGeofence(c.Request.Context(), req.toGeofence(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

func (h *GeofenceHandler) DeleteGeofence(c *gin.Context) {
	id, ok := paramID(c, "geofence_id")
	if !ok {
		return
	}

	if err := h.admin.DeleteGeofence(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *GeofenceHandler) AssignVehicle(c *gin.Context) {
	geofenceID, vehicleID, ok := membershipParams(c)
	if !ok {
		return
	}

	g, err := h.admin.AssignGeofence(c.Request.Context(), geofenceID, vehicleID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

func (h *GeofenceHandler) UnassignVehicle(c *gin.Context) {
	geofenceID, vehicleID, ok := membershipParams(c)
	if !ok {
		return
	}

	g, err := h.admin.UnassignGeofence(c.Request.Context(), geofenceID, vehicleID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

func membershipParams(c *gin.Context) (int64, int64, bool) {
	geofenceID, ok := paramID(c, "geofence_id")
	if !ok {
		return 0, 0, false
	}
	vehicleID, ok := paramID(c, "vehicle_id")
	if !ok {
		return 0, 0, false
	}
	return geofenceID, vehicleID, true
}

func (r geofenceRequest) toGeofence(id int64) domain.Geofence {
	return domain.Geofence{
		ID:           id,
		Name:         r.Name,
		Shape:        r.Shape,
		Center:       r.Center,
		Radius:       r.Radius,
		Vertices:     r.Vertices,
		Corners:      r.Corners,
		AlertOnEnter: r.AlertOnEnter,
		AlertOnExit:  r.AlertOnExit,
		AlertOnSpeed: r.AlertOnSpeed,
		SpeedLimit:   r.SpeedLimit,
		Priority:     r.Priority,
		VehicleIDs:   r.VehicleIDs,
	}
}
