package config

import (
	"fmt"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a configuration for values that would fail at runtime
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}
	if cfg.Plugins.HookTimeout <= 0 {
		return fmt.Errorf("hook timeout must be positive")
	}
	if cfg.Plugins.SweepEnabled && cfg.Plugins.SweepSchedule == "" {
		return fmt.Errorf("sweep schedule is required when the sweep is enabled")
	}
	if cfg.Log.Level != "" && !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	return nil
}
