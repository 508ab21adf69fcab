package config

import (
	"time"
)

// Config is the platform configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Storage  StorageConfig  `mapstructure:"storage" json:"storage"`
	Plugins  PluginsConfig  `mapstructure:"plugins" json:"plugins"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// ServerConfig holds HTTP gateway settings
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// StorageConfig holds file storage settings
type StorageConfig struct {
	Root string `mapstructure:"root" json:"root"`
}

// PluginsConfig holds plugin runtime settings
type PluginsConfig struct {
	HookTimeout   time.Duration `mapstructure:"hookTimeout" json:"hookTimeout"`
	SweepEnabled  bool          `mapstructure:"sweepEnabled" json:"sweepEnabled"`
	SweepSchedule string        `mapstructure:"sweepSchedule" json:"sweepSchedule"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	File    string `mapstructure:"file" json:"file"`
	Console bool   `mapstructure:"console" json:"console"`
	Pretty  bool   `mapstructure:"pretty" json:"pretty"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8450,
		},
		Database: DatabaseConfig{
			Path: "campus.db",
		},
		Storage: StorageConfig{
			Root: "storage",
		},
		Plugins: PluginsConfig{
			HookTimeout:   30 * time.Second,
			SweepEnabled:  true,
			SweepSchedule: "*/10 * * * *",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
			Pretty:  false,
		},
	}
}
