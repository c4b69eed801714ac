// SmartChill Notifier - alert delivery and Telegram interaction.
//
// Hosts two cooperating components on one MQTT connection: the
// notification router, which turns fleet alerts into Telegram messages,
// and the interaction engine, which serves the bot commands for
// registration, device management and configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/group17/smartchill/internal/bot"
	"github.com/group17/smartchill/internal/catalog"
	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
	"github.com/group17/smartchill/internal/notify"
	"github.com/group17/smartchill/internal/registry"
)

var version = "dev"

const (
	serviceName       = "notifier"
	defaultConfigPath = "configs/config.yaml"

	// Delivered alerts are kept for three months, pruned daily.
	historyPruneInterval = 24 * time.Hour
	historyRetention     = 90 * 24 * time.Hour
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
	log.Info("starting SmartChill notifier", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (telegram.token or SMARTCHILL_TELEGRAM_TOKEN)")
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath)

	telegram, err := bot.NewTelegram(cfg.Telegram.Token, log.With("component", "telegram"))
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	if cfg.Telegram.SetDescriptionsOnStart {
		if err := telegram.SetCommandMenu(); err != nil {
			log.Warn("setting command menu failed", "error", err)
		}
	}

	history, err := notify.OpenHistory(cfg.Telegram.HistoryPath)
	if err != nil {
		return fmt.Errorf("opening alert history: %w", err)
	}
	defer func() {
		log.Info("closing alert history")
		if closeErr := history.Close(); closeErr != nil {
			log.Error("error closing alert history", "error", closeErr)
		}
	}()
	log.Info("alert history opened", "path", cfg.Telegram.HistoryPath)
	go history.PruneLoop(ctx, historyPruneInterval, historyRetention, log.With("component", "history"))

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

	engine := bot.NewEngine(telegram, cat, bus, history, log.With("component", "engine"))
	router := notify.NewRouter(telegram, cat, history, log.With("component", "router"))
	router.SetConfigReplyHandler(engine.HandleConfigReply)

	topics := mqtt.Topics{}
	qos := byte(cfg.MQTT.QoS)
	if err := bus.Subscribe(topics.AllAlerts(), qos, router.HandleAlert); err != nil {
		return fmt.Errorf("subscribing to alerts: %w", err)
	}
	for _, topic := range topics.AllConfigReplies() {
		if err := bus.Subscribe(topic, qos, router.HandleConfigReply); err != nil {
			return fmt.Errorf("subscribing to config replies: %w", err)
		}
	}

	go cat.KeepRegistered(ctx, registry.Service{
		ServiceID:   serviceName,
		Name:        "Telegram Notifier",
		Description: "Delivers fleet alerts to Telegram and serves the bot commands",
		Endpoints:   []string{topics.AllAlerts()},
		Type:        "notification",
		Version:     version,
	}, cfg.RegistrationInterval())

	go engine.Run(ctx, telegram.Updates(ctx))

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
