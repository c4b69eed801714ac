// Package config loads SmartChill process configuration from YAML with
// environment variable overrides.
//
// All five processes (registry, door-timer, spoilage, status, notifier)
// share the same configuration shape; each reads only the sections that
// apply to it. Per-device control thresholds are deliberately NOT part of
// this package: they live in each control service's own settings file and
// are mutated over the bus configuration protocol.
package config
