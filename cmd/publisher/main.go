package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type locationMessage struct {
	VehicleID string   `json:"vehicle_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     float64  `json:"speed"`
	Heading   float64  `json:"heading"`
	Ignition  *bool    `json:"ignition,omitempty"`
	Battery   *float64 `json:"battery,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// vehicleSim keeps a drifting position per vehicle so consecutive fixes look
// like a route rather than teleports.
type vehicleSim struct {
	code     string
	lat, lon float64
	speed    float64
	heading  float64
	ignition bool
	battery  float64
}

const (
	zoneLat = -6.2088
	zoneLon = 106.8456
)

func newVehicleSim(code string) *vehicleSim {
	return &vehicleSim{
		code:     code,
		lat:      zoneLat + (rand.Float64()-0.5)*0.02,
		lon:      zoneLon + (rand.Float64()-0.5)*0.02,
		heading:  rand.Float64() * 360,
		ignition: true,
		battery:  60 + rand.Float64()*40,
	}
}

func (v *vehicleSim) step(interval time.Duration) locationMessage {
	switch r := rand.Float64(); {
	case r < 0.1:
		v.ignition = !v.ignition
	case r < 0.25:
		// burst above a typical 50 km/h zone limit
		v.speed = 55 + rand.Float64()*30
	default:
		v.speed = rand.Float64() * 50
	}
	if !v.ignition {
		v.speed = 0
	}
	v.heading = mod360(v.heading + (rand.Float64()-0.5)*40)
	v.battery = max(0, v.battery-rand.Float64()*0.5)

	// km/h over the interval, converted to degrees at roughly 111 km each
	dist := v.speed * interval.Hours() / 111
	v.lat += dist * cosDeg(v.heading)
	v.lon += dist * sinDeg(v.heading)

	ignition := v.ignition
	battery := float64(int(v.battery*10)) / 10
	return locationMessage{
		VehicleID: v.code,
		Latitude:  v.lat,
		Longitude: v.lon,
		Speed:     float64(int(v.speed*10)) / 10,
		Heading:   float64(int(v.heading)),
		Ignition:  &ignition,
		Battery:   &battery,
		Timestamp: time.Now().Unix(),
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds> [vehicle_code...]\n", os.Args[0])
		os.Exit(1)
	}

	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}
	interval := time.Duration(intervalSec) * time.Second

	codes := os.Args[2:]
	if len(codes) == 0 {
		codes = strings.Split(getEnv("VEHICLE_CODES", "VAN-1,VAN-2,TRUCK-1"), ",")
	}

	broker := getEnv("MQTT_BROKER", "tcp://localhost:1883")
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("fleet-mock-publisher")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	fleet := make([]*vehicleSim, 0, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			fleet = append(fleet, newVehicleSim(code))
		}
	}

	log.Printf("connected to %s, publishing every %ds...", broker, intervalSec)
	log.Printf("vehicles: %v", codes)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		for _, v := range fleet {
			payload, _ := json.Marshal(v.step(interval))
			topic := fmt.Sprintf("/fleet/vehicle/%s/location", v.code)

			token := client.Publish(topic, 1, false, payload)
			token.Wait()
			if err := token.Error(); err != nil {
				log.Printf("publish to %s failed: %v", topic, err)
				continue
			}

			log.Printf("published to %s: %s", topic, payload)
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
