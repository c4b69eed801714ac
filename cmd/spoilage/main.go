// SmartChill Spoilage Detector - gas monitoring control service.
//
// Subscribes to the fleet's gas sensor streams and publishes Spoilage
// alerts when a reading exceeds the device's gas_threshold_ppm.
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
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
	"github.com/group17/smartchill/internal/registry"
)

var version = "dev"

const (
	serviceName         = "spoilage"
	defaultConfigPath   = "configs/config.yaml"
	defaultSettingsPath = "./data/spoilage_settings.json"
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
	log.Info("starting SmartChill spoilage detector", "version", version)

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
	settings, err := control.LoadSettings(settingsPath, control.SpoilageDefaults())
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
	detector := control.NewSpoilage(serviceName, bus, settings, cat, log)

	topics := mqtt.Topics{}
	qos := byte(cfg.MQTT.QoS)
	if err := bus.Subscribe(topics.AllSensor("gas"), qos, detector.HandleReading); err != nil {
		return fmt.Errorf("subscribing to gas readings: %w", err)
	}
	if err := bus.Subscribe(topics.AllConfigUpdates(serviceName), qos, detector.HandleConfigUpdate); err != nil {
		return fmt.Errorf("subscribing to config updates: %w", err)
	}

	go cat.KeepRegistered(ctx, registry.Service{
		ServiceID:   serviceName,
		Name:        "Spoilage Detector",
		Description: "Alerts on elevated gas readings that indicate spoiling food",
		Endpoints:   []string{topics.AllSensor("gas"), topics.AllConfigUpdates(serviceName)},
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
