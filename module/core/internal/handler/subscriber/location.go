package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/service"
)

const topicPattern = "/fleet/vehicle/+/location"

type reportDispatcher interface {
	Submit(ctx context.Context, code string, r domain.PositionReport) (<-chan service.DispatchResult, error)
}

type locationMessage struct {
	VehicleID string   `json:"vehicle_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     float64  `json:"speed"`
	Heading   float64  `json:"heading"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Ignition  *bool    `json:"ignition,omitempty"`
	Fuel      *float64 `json:"fuel,omitempty"`
	Battery   *float64 `json:"battery,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// LocationSubscriber feeds device fixes from MQTT into the dispatcher.
// Processing is asynchronous; rejected reports are logged by the dispatcher.
type LocationSubscriber struct {
	client     mqtt.Client
	dispatcher reportDispatcher
	log        logging.Logger
}

func NewLocationSubscriber(client mqtt.Client, dispatcher reportDispatcher, log logging.Logger) *LocationSubscriber {
	if log == nil {
		log = logging.Noop()
	}
	return &LocationSubscriber{
		client:     client,
		dispatcher: dispatcher,
		log:        log,
	}
}

func (s *LocationSubscriber) Start() error {
	token := s.client.Subscribe(topicPattern, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) Stop() error {
	token := s.client.Unsubscribe(topicPattern)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()

	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warn(ctx, "invalid location message", logging.String("topic", msg.Topic()), logging.Err(err))
		return
	}
	if raw.VehicleID == "" {
		raw.VehicleID = codeFromTopic(msg.Topic())
	}

	if err := validateLocationMessage(&raw); err != nil {
		s.log.Warn(ctx, "location message rejected", logging.String("topic", msg.Topic()), logging.Err(err))
		return
	}

	if _, err := s.dispatcher.Submit(ctx, raw.VehicleID, raw.toReport()); err != nil {
		s.log.Error(ctx, "dispatch location message", logging.String("vehicle_code", raw.VehicleID), logging.Err(err))
	}
}

func (m *locationMessage) toReport() domain.PositionReport {
	return domain.PositionReport{
		Point:     domain.Point{Lat: m.Latitude, Lon: m.Longitude},
		Speed:     m.Speed,
		Heading:   m.Heading,
		Altitude:  m.Altitude,
		Ignition:  m.Ignition,
		Fuel:      m.Fuel,
		Battery:   m.Battery,
		Timestamp: time.Unix(m.Timestamp, 0),
	}
}

// codeFromTopic extracts <code> from /fleet/vehicle/<code>/location.
func codeFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "fleet" || parts[1] != "vehicle" || parts[3] != "location" {
		return ""
	}
	return parts[2]
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.VehicleID == "" {
		return fmt.Errorf("vehicle_id: required")
	}
	if math.IsNaN(msg.Latitude) || msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if math.IsNaN(msg.Longitude) || msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Speed < 0 {
		return fmt.Errorf("speed: must not be negative")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
