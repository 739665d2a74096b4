package main

import "testing"

func TestWanted(t *testing.T) {
	tests := []struct {
		filter    string
		eventType string
		want      bool
	}{
		{"", "alertCreated", true},
		{"alertCreated", "alertCreated", true},
		{"alertCreated, alertRead", "alertRead", true},
		{"alertCreated", "vehicleLocationUpdate", false},
	}
	for _, tt := range tests {
		if got := wanted(tt.filter, tt.eventType); got != tt.want {
			t.Errorf("wanted(%q, %q) = %v, want %v", tt.filter, tt.eventType, got, tt.want)
		}
	}
}
