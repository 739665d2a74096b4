package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

type reportProcessor interface {
	Process(ctx context.Context, code string, r domain.PositionReport) ([]domain.Event, error)
}

// positionRequest mirrors the MQTT payload. A zero timestamp means now.
type positionRequest struct {
	VehicleID string   `json:"vehicle_id" binding:"required"`
	Latitude  float64  `json:"latitude" binding:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" binding:"gte=-180,lte=180"`
	Speed     float64  `json:"speed" binding:"gte=0"`
	Heading   float64  `json:"heading"`
	Altitude  *float64 `json:"altitude"`
	Ignition  *bool    `json:"ignition"`
	Fuel      *float64 `json:"fuel" binding:"omitempty,gte=0,lte=100"`
	Battery   *float64 `json:"battery" binding:"omitempty,gte=0,lte=100"`
	Timestamp int64    `json:"timestamp" binding:"gte=0"`
}

type PositionHandler struct {
	processor reportProcessor
}

func NewPositionHandler(processor reportProcessor) *PositionHandler {
	return &PositionHandler{processor: processor}
}

func (h *PositionHandler) Register(r *gin.RouterGroup) {
	r.POST("/positions", h.ReportPosition)
}

// ReportPosition runs the report through the same ordered lane as MQTT
// ingestion and returns the events it produced.
func (h *PositionHandler) ReportPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	events, err := h.processor.Process(c.Request.Context(), req.VehicleID, req.toReport())
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	c.JSON(http.StatusAccepted, gin.H{"events": events})
}

func (r positionRequest) toReport() domain.PositionReport {
	report := domain.PositionReport{
		Point:    domain.Point{Lat: r.Latitude, Lon: r.Longitude},
		Speed:    r.Speed,
		Heading:  r.Heading,
		Altitude: r.Altitude,
		Ignition: r.Ignition,
		Fuel:     r.Fuel,
		Battery:  r.Battery,
	}
	if r.Timestamp > 0 {
		report.Timestamp = time.Unix(r.Timestamp, 0)
	}
	return report
}
