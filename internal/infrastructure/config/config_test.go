package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "service:\n  id: doortimer\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("default broker host = %q, want localhost", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("default qos = %d, want 2", cfg.MQTT.QoS)
	}
	if cfg.Catalog.RegistrationInterval != 60 {
		t.Errorf("default registration interval = %d, want 60", cfg.Catalog.RegistrationInterval)
	}
	if cfg.Service.ID != "doortimer" {
		t.Errorf("service id = %q, want doortimer", cfg.Service.ID)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mqtt:
  broker:
    host: broker.lan
    port: 8883
    tls: true
  qos: 1
catalog:
  url: http://registry.lan:8080
  registration_interval_seconds: 120
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("broker host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("broker port = %d", cfg.MQTT.Broker.Port)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("tls not enabled")
	}
	if cfg.Catalog.URL != "http://registry.lan:8080" {
		t.Errorf("catalog url = %q", cfg.Catalog.URL)
	}
	if cfg.Catalog.RegistrationInterval != 120 {
		t.Errorf("registration interval = %d", cfg.Catalog.RegistrationInterval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, "mqtt:\n  broker:\n    host: from-file\n")

	t.Setenv("SMARTCHILL_MQTT_HOST", "from-env")
	t.Setenv("SMARTCHILL_TELEGRAM_TOKEN", "secret-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("broker host = %q, want from-env", cfg.MQTT.Broker.Host)
	}
	if cfg.Telegram.Token != "secret-token" {
		t.Errorf("telegram token = %q", cfg.Telegram.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"empty broker host", func(c *Config) { c.MQTT.Broker.Host = "" }},
		{"bad api port", func(c *Config) { c.API.Port = 0 }},
		{"empty catalog url", func(c *Config) { c.Catalog.URL = "" }},
		{"zero registration interval", func(c *Config) { c.Catalog.RegistrationInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
