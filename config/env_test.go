package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.IdleAfter != 5*time.Minute {
		t.Errorf("expected idle after 5m, got %v", cfg.IdleAfter)
	}
	if cfg.SpeedAlertDebounce != 0 {
		t.Errorf("expected debounce disabled, got %v", cfg.SpeedAlertDebounce)
	}
	if cfg.SubscriberBuffer != 256 || cfg.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected live defaults: %d %v", cfg.SubscriberBuffer, cfg.WriteTimeout)
	}
	if cfg.EmailEnabled() {
		t.Error("expected email disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SPEED_ALERT_DEBOUNCE", "30s")
	t.Setenv("OFFLINE_AFTER", "2m")
	t.Setenv("SUBSCRIBER_BUFFER", "64")
	t.Setenv("SES_REGION", "ap-southeast-1")
	t.Setenv("SES_FROM", "fleet@example.com")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, dispatch@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("expected 9090, got %s", cfg.HTTPPort)
	}
	if cfg.SpeedAlertDebounce != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.SpeedAlertDebounce)
	}
	if cfg.OfflineAfter != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.OfflineAfter)
	}
	if cfg.SubscriberBuffer != 64 {
		t.Errorf("expected 64, got %d", cfg.SubscriberBuffer)
	}
	if len(cfg.AlertRecipients) != 2 || cfg.AlertRecipients[1] != "dispatch@example.com" {
		t.Errorf("unexpected recipients: %v", cfg.AlertRecipients)
	}
	if !cfg.EmailEnabled() {
		t.Error("expected email enabled")
	}
}

func TestLoad_EmptyValueDisablesIntegration(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("RABBITMQ_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PostgresDSN != "" || cfg.RabbitMQURL != "" {
		t.Errorf("expected integrations disabled, got %q %q", cfg.PostgresDSN, cfg.RabbitMQURL)
	}
	if cfg.MQTTBroker == "" {
		t.Error("expected mqtt broker default to remain")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"port", map[string]string{"HTTP_PORT": "http"}},
		{"battery threshold", map[string]string{"LOW_BATTERY_THRESHOLD": "150"}},
		{"otlp without endpoint", map[string]string{"TRACING_EXPORTER": "otlp"}},
		{"ses sender without region", map[string]string{"SES_FROM": "fleet@example.com"}},
		{"bad recipient", map[string]string{"ALERT_RECIPIENTS": "not-an-email"}},
		{"zero buffer", map[string]string{"SUBSCRIBER_BUFFER": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	content := "http_port: \"7070\"\nspeed_alert_debounce: 1m\nalert_on_ignition: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "7070" {
		t.Errorf("expected 7070, got %s", cfg.HTTPPort)
	}
	if cfg.SpeedAlertDebounce != time.Minute {
		t.Errorf("expected 1m, got %v", cfg.SpeedAlertDebounce)
	}
	if !cfg.AlertOnIgnition {
		t.Error("expected ignition alerts enabled")
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
