package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

type vehicleQuery interface {
	ListVehicles(ctx context.Context) ([]domain.VehicleState, error)
	GetVehicle(ctx context.Context, id int64) (domain.VehicleState, error)
	GetLiveStatus(ctx context.Context, vehicleID int64) (domain.VehicleStatus, error)
	ListVehicleAlerts(ctx context.Context, vehicleID int64, limit int) ([]domain.Alert, error)
}

type vehicleAdmin interface {
	CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	DeleteVehicle(ctx context.Context, id int64) error
}

type locationService interface {
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.VehicleLocation, error)
}

type tripSource interface {
	Trips(vehicleID int64) []domain.Trip
}

type vehicleRequest struct {
	Code         string `json:"code" binding:"required,max=64"`
	Name         string `json:"name" binding:"max=128"`
	Type         string `json:"type" binding:"max=64"`
	Registration string `json:"registration" binding:"max=32"`
}

type locationResponse struct {
	VehicleID int64         `json:"vehicle_id"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Speed     float64       `json:"speed"`
	Heading   float64       `json:"heading"`
	Status    domain.Status `json:"status"`
	Timestamp int64         `json:"timestamp"`
}

type VehicleHandler struct {
	query   vehicleQuery
	admin   vehicleAdmin
	history locationService
	trips   tripSource
}

// NewVehicleHandler wires the vehicle routes. history and trips are optional;
// their routes are not registered when nil.
func NewVehicleHandler(query vehicleQuery, admin vehicleAdmin, history locationService, trips tripSource) *VehicleHandler {
	return &VehicleHandler{
		query:   query,
		admin:   admin,
		history: history,
		trips:   trips,
	}
}

func (h *VehicleHandler) Register(r *gin.RouterGroup) {
	r.GET("/vehicles", h.ListVehicles)
	r.POST("/vehicles", h.CreateVehicle)
	r.GET("/vehicles/:vehicle_id", h.GetVehicle)
	r.PUT("/vehicles/:vehicle_id", h.UpdateVehicle)
	r.DELETE("/vehicles/:vehicle_id", h.DeleteVehicle)
	r.GET("/vehicles/:vehicle_id/location", h.GetLatestLocation)
	r.GET("/vehicles/:vehicle_id/alerts", h.GetAlerts)
	if h.history != nil {
		r.GET("/vehicles/:vehicle_id/history", h.GetHistory)
	}
	if h.trips != nil {
		r.GET("/vehicles/:vehicle_id/trips", h.GetTrips)
	}
}

func (h *VehicleHandler) ListVehicles(c *gin.Context) {
	vehicles, err := h.query.ListVehicles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, vehicles)
}

func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}

	state, err := h.query.GetVehicle(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *VehicleHandler) CreateVehicle(c *gin.Context) {
	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	v, err := h.admin.CreateVehicle(c.Request.Context(), req.toVehicle(0))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (h *VehicleHandler) UpdateVehicle(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}
	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	v, err := h.admin.UpdateVehicle(c.Request.Context(), req.toVehicle(id))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (h *VehicleHandler) DeleteVehicle(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}

	if err := h.admin.DeleteVehicle(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *VehicleHandler) GetLatestLocation(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}

	st, err := h.query.GetLiveStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (h *VehicleHandler) GetAlerts(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	alerts, err := h.query.ListVehicleAlerts(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

func (h *VehicleHandler) GetHistory(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		badRequest(c, "invalid start parameter")
		return
	}

	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		badRequest(c, "invalid end parameter")
		return
	}

	query := &domain.HistoryQuery{
		VehicleID: id,
		Start:     time.Unix(start, 0),
		End:       time.Unix(end, 0),
	}

	locations, err := h.history.GetHistory(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}

	results := make([]locationResponse, len(locations))
	for i, vl := range locations {
		results[i] = toLocationResponse(&vl)
	}
	c.JSON(http.StatusOK, results)
}

func (h *VehicleHandler) GetTrips(c *gin.Context) {
	id, ok := paramID(c, "vehicle_id")
	if !ok {
		return
	}
	if _, err := h.query.GetVehicle(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	trips := h.trips.Trips(id)
	if trips == nil {
		trips = []domain.Trip{}
	}
	c.JSON(http.StatusOK, trips)
}

func (r vehicleRequest) toVehicle(id int64) domain.Vehicle {
	return domain.Vehicle{
		ID:           id,
		Code:         r.Code,
		Name:         r.Name,
		Type:         r.Type,
		Registration: r.Registration,
	}
}

func toLocationResponse(vl *domain.VehicleLocation) locationResponse {
	return locationResponse{
		VehicleID: vl.VehicleID,
		Latitude:  vl.Location.Lat,
		Longitude: vl.Location.Lon,
		Speed:     vl.Speed,
		Heading:   vl.Heading,
		Status:    vl.Status,
		Timestamp: vl.Location.Timestamp.Unix(),
	}
}
