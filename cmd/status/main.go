// SmartChill Status Monitor - temperature and humidity control service.
//
// Subscribes to the fleet's temperature and humidity streams, records
// every reading to the optional telemetry sink and publishes Malfunction
// alerts when a reading leaves the device's configured band.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/group17/smartchill/internal/catalog"
	"github.com/group17/smartchill/internal/control"
	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/influxdb"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
	"github.com/group17/smartchill/internal/registry"
)

var version = "dev"

const (
	serviceName         = "status"
	defaultConfigPath   = "configs/config.yaml"
	defaultSettingsPath = "./data/status_settings.json"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting SmartChill status monitor", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath)

	settingsPath := cfg.Service.SettingsPath
	if settingsPath == "" {
		settingsPath = defaultSettingsPath
	}
	settings, err := control.LoadSettings(settingsPath, control.StatusDefaults())
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	log.Info("settings loaded", "path", settingsPath, "devices", len(settings.Devices()))

	bus, err := mqtt.Connect(cfg.MQTT, serviceName)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	bus.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", bus.ClientID(),
	)

	cat := catalog.New(cfg.Catalog, cfg.CatalogTimeout(), log.With("component", "catalog"))
	monitor := control.NewStatus(serviceName, bus, settings, cat, log)

	// The status monitor is the fleet's telemetry writer; without the sink
	// it still alerts, just without dashboards.
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		monitor.SetTelemetry(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	topics := mqtt.Topics{}
	qos := byte(cfg.MQTT.QoS)
	for _, sensor := range []string{"temperature", "humidity"} {
		if err := bus.Subscribe(topics.AllSensor(sensor), qos, monitor.HandleReading); err != nil {
			return fmt.Errorf("subscribing to %s readings: %w", sensor, err)
		}
	}
	if err := bus.Subscribe(topics.AllConfigUpdates(serviceName), qos, monitor.HandleConfigUpdate); err != nil {
		return fmt.Errorf("subscribing to config updates: %w", err)
	}

	go cat.KeepRegistered(ctx, registry.Service{
		ServiceID:   serviceName,
		Name:        "Status Monitor",
		Description: "Watches temperature and humidity against per-device bands",
		Endpoints:   []string{topics.AllSensor("temperature"), topics.AllSensor("humidity"), topics.AllConfigUpdates(serviceName)},
		Type:        "control",
		Version:     version,
	}, cfg.RegistrationInterval())

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SMARTCHILL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
