package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by all SmartChill
// processes. Each service loads the same file shape and reads the sections
// it needs; per-device thresholds live in the service's own settings file,
// not here.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Registry RegistryConfig `yaml:"registry"`
	API      APIConfig      `yaml:"api"`
	Service  ServiceConfig  `yaml:"service"`
	Telegram TelegramConfig `yaml:"telegram"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProjectConfig identifies the fleet this process belongs to.
type ProjectConfig struct {
	Owner string `yaml:"owner"`
	Name  string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	// ClientIDPrefix is combined with a random suffix so multiple
	// instances of the same service never collide on the broker.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// CatalogConfig points a service at the Registry HTTP API.
type CatalogConfig struct {
	URL string `yaml:"url"`
	// RegistrationInterval is the re-register cadence in seconds.
	RegistrationInterval int `yaml:"registration_interval_seconds"`
	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout_seconds"`
}

// RegistryConfig contains settings for the registry process itself.
type RegistryConfig struct {
	// SnapshotPath is the JSON document the registry persists to.
	SnapshotPath string `yaml:"snapshot_path"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains the registry event stream settings.
type WebSocketConfig struct {
	Path         string `yaml:"path"`
	PingInterval int    `yaml:"ping_interval"`
	PongTimeout  int    `yaml:"pong_timeout"`
}

// ServiceConfig identifies a control service and its settings file.
type ServiceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SettingsPath string `yaml:"settings_path"`
}

// TelegramConfig contains chat platform credentials.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// SetDescriptionsOnStart pushes the command list to the Bot API at boot.
	SetDescriptionsOnStart bool `yaml:"set_descriptions_on_start"`
	// HistoryPath is the sqlite database recording delivered alerts.
	HistoryPath string `yaml:"history_path"`
}

// InfluxDBConfig contains optional telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTCHILL_SECTION_KEY
// For example: SMARTCHILL_MQTT_HOST, SMARTCHILL_CATALOG_URL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Owner: "Group17",
			Name:  "SmartChill",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "smartchill",
			},
			QoS: 2,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Catalog: CatalogConfig{
			URL:                  "http://localhost:8080",
			RegistrationInterval: 60,
			Timeout:              6,
		},
		Registry: RegistryConfig{
			SnapshotPath: "./data/registry.json",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				Path:         "/ws",
				PingInterval: 30,
				PongTimeout:  10,
			},
		},
		Telegram: TelegramConfig{
			HistoryPath: "./data/alerts.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SMARTCHILL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SMARTCHILL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTCHILL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SMARTCHILL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTCHILL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Catalog
	if v := os.Getenv("SMARTCHILL_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}

	// Registry
	if v := os.Getenv("SMARTCHILL_REGISTRY_SNAPSHOT"); v != "" {
		cfg.Registry.SnapshotPath = v
	}

	// API
	if v := os.Getenv("SMARTCHILL_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telegram - the token should never live in the config file in production
	if v := os.Getenv("SMARTCHILL_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTCHILL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Only process-agnostic settings are validated here; service-specific
// requirements (Telegram token for the notifier, settings path for control
// services) are enforced by the owning process at startup.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Catalog.URL == "" {
		errs = append(errs, "catalog.url is required")
	}
	if c.Catalog.RegistrationInterval < 1 {
		errs = append(errs, "catalog.registration_interval_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CatalogTimeout returns the Registry HTTP timeout as a Duration.
func (c *Config) CatalogTimeout() time.Duration {
	if c.Catalog.Timeout <= 0 {
		return 6 * time.Second
	}
	return time.Duration(c.Catalog.Timeout) * time.Second
}

// RegistrationInterval returns the catalog re-register cadence as a Duration.
func (c *Config) RegistrationInterval() time.Duration {
	return time.Duration(c.Catalog.RegistrationInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
