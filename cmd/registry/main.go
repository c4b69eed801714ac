// SmartChill Registry - fleet device catalog.
//
// The registry is the single writer of the fleet document: devices,
// users, assignments and service registrations. Everything else in the
// fleet talks to it over the HTTP API this process serves.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/group17/smartchill/internal/api"
	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/registry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var version = "dev"

const (
	serviceName       = "registry"
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main so errors
// turn into exit codes in one place.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting SmartChill registry", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath)

	// Load (or create) the fleet document
	snapshot := registry.NewSnapshot(cfg.Registry.SnapshotPath)
	doc, err := snapshot.Load()
	if err != nil {
		return fmt.Errorf("loading registry snapshot: %w", err)
	}
	store := registry.NewStore(doc, snapshot)
	store.SetLogger(log.With("component", "store"))
	log.Info("registry document loaded",
		"path", cfg.Registry.SnapshotPath,
		"devices", len(doc.Devices),
		"users", len(doc.Users),
	)

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Store:   store,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTCHILL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTCHILL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
