package logging

import (
	"log/slog"
	"testing"

	"github.com/group17/smartchill/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	cfg := config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}
	log := New(cfg, "registry", "test")
	if log == nil || log.Logger == nil {
		t.Fatal("New returned nil logger")
	}

	// With must return an independent logger.
	child := log.With("component", "store")
	if child == log {
		t.Error("With returned the same logger instance")
	}
}

func TestDefault(t *testing.T) {
	if Default("notifier") == nil {
		t.Fatal("Default returned nil")
	}
}
